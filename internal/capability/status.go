package capability

import "fmt"

// Feature is one user-facing feature line.
type Feature struct {
	Enabled bool   `json:"enabled"`
	Label   string `json:"label"`
	Detail  string `json:"detail"`
}

// Features groups the three features.
type Features struct {
	Grammar  Feature `json:"grammar"`
	Humanize Feature `json:"humanize"`
	Rewrite  Feature `json:"rewrite"`
}

// Credits is the displayed balance.
type Credits struct {
	Remaining int  `json:"remaining"`
	Tier      Tier `json:"tier"`
}

// Upgrade actions.
const (
	UpgradeBuyCredits = "BUY_CREDITS"
	UpgradeSignUp     = "SIGN_UP"
)

// UpgradePrompt invites the user to enable or refill AI features.
type UpgradePrompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Badge is the compact mode indicator.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
	Title string `json:"title"`
}

// Status is the read-only projection handed to listeners and surfaces.
type Status struct {
	Mode          Mode           `json:"mode"`
	Features      Features       `json:"features"`
	Credits       Credits        `json:"credits"`
	UpgradePrompt *UpgradePrompt `json:"upgradePrompt"`
	Badge         Badge          `json:"badge"`
}

// StatusOf projects s for display.
func StatusOf(s State) Status {
	g, r := s.Grammar, s.Remote
	aiEnabled := r.Connected && r.Credits > 0

	grammarDetail := "Error: " + g.Error
	if g.Loaded {
		grammarDetail = "Ready"
		if g.LoadLatencyMs != nil {
			grammarDetail = fmt.Sprintf("Ready (loaded in %dms)", *g.LoadLatencyMs)
		}
	}
	aiDetail := r.Error
	if r.Connected {
		aiDetail = fmt.Sprintf("Ready (%d credits)", r.Credits)
	}

	out := Status{
		Mode: s.Mode,
		Features: Features{
			Grammar:  Feature{Enabled: g.Loaded, Label: "Grammar Checking", Detail: grammarDetail},
			Humanize: Feature{Enabled: aiEnabled, Label: "AI Humanization", Detail: aiDetail},
			Rewrite:  Feature{Enabled: aiEnabled, Label: "AI Rewrite", Detail: aiDetail},
		},
		Credits: Credits{Remaining: r.Credits, Tier: r.Tier},
		Badge:   BadgeFor(s.Mode, r.Credits),
	}

	switch {
	case r.Connected && r.Credits == 0:
		out.UpgradePrompt = &UpgradePrompt{
			Title:   "Credits Depleted",
			Message: "Buy more credits to continue using AI features",
			Action:  UpgradeBuyCredits,
		}
	case !r.Connected:
		msg := r.Error
		if msg == "" {
			msg = "Sign up to get 100 free credits"
		}
		out.UpgradePrompt = &UpgradePrompt{Title: "Enable AI Features", Message: msg, Action: UpgradeSignUp}
	}
	return out
}

// BadgeFor returns the indicator for mode.
func BadgeFor(mode Mode, credits int) Badge {
	switch mode {
	case ModeAIReady:
		return Badge{Text: "✨", Color: "#10b981", Title: fmt.Sprintf("GhostWrite (AI Ready)\nGrammar + AI Features\n%d credits remaining", credits)}
	case ModeBasicOnly:
		return Badge{Text: "📝", Color: "#6b7280", Title: "GhostWrite (Basic Mode)\nGrammar checking only"}
	case ModeError:
		return Badge{Text: "⚠️", Color: "#ef4444", Title: "GhostWrite (Error)\nClick to see details"}
	default:
		return Badge{Text: "⏳", Color: "#f59e0b", Title: "GhostWrite (Loading...)"}
	}
}
