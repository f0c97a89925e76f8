// Package capability tracks which features are usable right now and runs
// the two-stage transform then grammar pipeline.
package capability

import "time"

// Mode is the overall operating mode. It is always derived, never set.
type Mode string

const (
	ModeInitializing Mode = "INITIALIZING"
	ModeAIReady      Mode = "AI_READY"
	ModeBasicOnly    Mode = "BASIC_ONLY"
	ModeError        Mode = "ERROR"
)

// RemoteStatus describes the last contact with the transform service.
type RemoteStatus string

const (
	RemoteConnected RemoteStatus = "connected"
	RemoteOffline   RemoteStatus = "offline"
	RemoteError     RemoteStatus = "error"
	RemoteUnknown   RemoteStatus = "unknown"
)

// Tier is the account tier.
type Tier string

const (
	TierFree  Tier = "free"
	TierTrial Tier = "trial"
	TierPaid  Tier = "paid"
)

// GrammarState is the outcome of loading the grammar engine.
type GrammarState struct {
	Loaded        bool   `json:"loaded"`
	Error         string `json:"error,omitempty"`
	LoadLatencyMs *int64 `json:"load_latency_ms,omitempty"`
}

// RemoteState is the outcome of the last service check.
type RemoteState struct {
	Connected      bool         `json:"connected"`
	Status         RemoteStatus `json:"status"`
	Credits        int          `json:"credits"`
	Tier           Tier         `json:"tier"`
	Error          string       `json:"error,omitempty"`
	CheckedAt      time.Time    `json:"checked_at"`
	CheckLatencyMs int64        `json:"check_latency_ms"`
}

// State is the full capability state.
type State struct {
	Grammar GrammarState `json:"grammar"`
	Remote  RemoteState  `json:"remote"`
	Mode    Mode         `json:"mode"`
}

func initialState() State {
	return State{
		Remote: RemoteState{Status: RemoteUnknown, Tier: TierFree},
		Mode:   ModeInitializing,
	}
}

// DeriveMode computes the mode. Grammar is the floor: without it nothing
// works. AI needs a connected service with at least one credit.
func DeriveMode(g GrammarState, r RemoteState) Mode {
	if !g.Loaded {
		return ModeError
	}
	if r.Connected && r.Credits > 0 {
		return ModeAIReady
	}
	return ModeBasicOnly
}
