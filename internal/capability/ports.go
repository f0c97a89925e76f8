package capability

import (
	"context"
	"time"

	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/remote"
)

// CredentialStore persists the API key. Load returns "" when none is saved.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, key string) error
}

// GrammarLoader produces the grammar engine.
type GrammarLoader interface {
	Load(ctx context.Context) (grammar.Engine, error)
}

// Transformer performs the AI stage and reports the credit balance.
// remote.Client is the metered variant; LocalTransformer calls providers directly.
type Transformer interface {
	RequiresCredential() bool
	Status(ctx context.Context, apiKey string) (*remote.Account, error)
	Transform(ctx context.Context, apiKey, text, action string) (*remote.Transformation, error)
}

// Indicator shows the compact mode badge.
type Indicator interface {
	SetBadge(Badge)
}

// Notifier raises user-facing alerts.
type Notifier interface {
	UpgradeAvailable(credits int)
	LowCredits(credits int)
}

// Listener receives every status broadcast.
type Listener func(Status)

// Clock is injectable time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type nopIndicator struct{}

func (nopIndicator) SetBadge(Badge) {}

type nopNotifier struct{}

func (nopNotifier) UpgradeAvailable(int) {}
func (nopNotifier) LowCredits(int)       {}
