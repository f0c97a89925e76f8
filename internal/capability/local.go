package capability

import (
	"context"
	"math"

	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/provider"
	"github.com/hpungsan/ghostwrite/internal/remote"
)

// UnlimitedCredits is the balance reported by LocalTransformer.
const UnlimitedCredits = math.MaxInt32

// Chain is the provider fallback chain.
type Chain interface {
	Process(ctx context.Context, text, action string) (provider.Result, error)
}

// LocalTransformer runs transforms against the providers directly with the
// operator's own provider keys. Nothing is metered.
type LocalTransformer struct {
	Chain Chain
}

// RequiresCredential implements Transformer.
func (l *LocalTransformer) RequiresCredential() bool { return false }

// Status implements Transformer.
func (l *LocalTransformer) Status(context.Context, string) (*remote.Account, error) {
	return &remote.Account{Tier: string(TierPaid), Credits: UnlimitedCredits}, nil
}

// Transform implements Transformer.
func (l *LocalTransformer) Transform(ctx context.Context, _, text, action string) (*remote.Transformation, error) {
	out, err := l.Chain.Process(ctx, text, action)
	if err != nil {
		return nil, errors.NewServiceUnavailable("", err)
	}
	credits := UnlimitedCredits
	return &remote.Transformation{
		Text:               out.Text,
		Provider:           out.Provider,
		CreditsRemaining:   &credits,
		ShouldCheckGrammar: true,
	}, nil
}
