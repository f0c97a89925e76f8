package capability

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/remote"
)

// PipelineResult is the combined outcome of both stages. GrammarFindings
// index into TransformedText.
type PipelineResult struct {
	OriginalText     string            `json:"original_text"`
	TransformedText  string            `json:"text"`
	GrammarFindings  []grammar.Finding `json:"grammar_errors"`
	Provider         string            `json:"provider"`
	CreditsRemaining int               `json:"credits_remaining"`
	PipelineComplete bool              `json:"pipeline_complete"`
}

// RunPipeline transforms text with action, applies the credit update, then
// grammar-checks the output when the service asks for it. The grammar stage
// is best effort and never fails the pipeline.
func (m *Manager) RunPipeline(ctx context.Context, text, action string) (*PipelineResult, error) {
	ctx, span := m.tracer.Start(ctx, "capability.run_pipeline")
	defer span.End()
	span.SetAttributes(
		attribute.String("action", action),
		attribute.Int("text.length", utf8.RuneCountInString(text)),
	)

	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	if !prompts.IsValidAction(action) {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown action: %s", action))
	}

	m.mu.RLock()
	connected, credits, key := m.state.Remote.Connected, m.state.Remote.Credits, m.apiKey
	m.mu.RUnlock()
	if !connected || credits < 1 {
		return nil, errors.NewInsufficientCredits(credits)
	}

	out, err := m.transform(ctx, key, text, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, errors.ErrInsufficientCredits) {
			m.applyCredits(0)
		}
		return nil, err
	}

	var remaining int
	if out.CreditsRemaining != nil {
		remaining = m.applyCredits(*out.CreditsRemaining)
	} else {
		remaining = m.applyDebit()
	}
	m.logger.Info("capability.transformed",
		"action", action,
		"provider", out.Provider,
		"credits_remaining", remaining,
		"text", logging.Preview(text, 40),
	)

	findings := []grammar.Finding{}
	if out.ShouldCheckGrammar {
		findings = m.lintBestEffort(ctx, out.Text)
	}

	return &PipelineResult{
		OriginalText:     text,
		TransformedText:  out.Text,
		GrammarFindings:  findings,
		Provider:         out.Provider,
		CreditsRemaining: remaining,
		PipelineComplete: true,
	}, nil
}

func (m *Manager) transform(ctx context.Context, key, text, action string) (out *remote.Transformation, err error) {
	ctx, span := m.tracer.Start(ctx, "capability.stage_transform")
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("capability.transform_panic", "panic", r)
			out, err = nil, errors.NewServiceUnavailable("", fmt.Errorf("transformer panicked: %v", r))
		}
	}()

	out, err = m.transformer.Transform(ctx, key, text, action)
	if err != nil {
		gErr := errors.As(err)
		if gErr.Code == errors.ErrInternal {
			return nil, errors.NewServiceUnavailable("", err)
		}
		return nil, gErr
	}
	if out == nil {
		return nil, errors.NewServiceUnavailable("empty transform response", nil)
	}
	return out, nil
}

// applyCredits sets the balance to the authoritative value, re-derives the
// mode and broadcasts before the grammar stage begins.
func (m *Manager) applyCredits(credits int) int {
	m.mu.Lock()
	m.state.Remote.Credits = max(credits, 0)
	return m.commitCredits()
}

// applyDebit is the optimistic local decrement used when the service omits
// the balance.
func (m *Manager) applyDebit() int {
	m.mu.Lock()
	m.state.Remote.Credits = max(m.state.Remote.Credits-1, 0)
	return m.commitCredits()
}

// commitCredits finishes a credit update. Caller holds mu; it is released here.
func (m *Manager) commitCredits() int {
	m.state.Mode = DeriveMode(m.state.Grammar, m.state.Remote)
	snapshot := m.state
	m.mu.Unlock()

	m.indicator.SetBadge(BadgeFor(snapshot.Mode, snapshot.Remote.Credits))
	m.notify(snapshot)
	return snapshot.Remote.Credits
}

func (m *Manager) lintBestEffort(ctx context.Context, text string) (findings []grammar.Finding) {
	ctx, span := m.tracer.Start(ctx, "capability.stage_grammar")
	defer span.End()

	m.mu.RLock()
	loaded, engine := m.state.Grammar.Loaded, m.engine
	m.mu.RUnlock()
	if !loaded || engine == nil {
		return []grammar.Finding{}
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("capability.grammar_panic", "panic", r)
			findings = []grammar.Finding{}
		}
	}()

	out, err := engine.Lint(ctx, text)
	if err != nil {
		m.logger.Warn("capability.grammar_failed", "error", err)
		span.RecordError(err)
		return []grammar.Finding{}
	}
	if out == nil {
		out = []grammar.Finding{}
	}
	span.SetAttributes(attribute.Int("findings", len(out)))
	return out
}

// CheckGrammarOnly lints text without the AI stage. It fails on empty text or
// when the engine never loaded; engine errors yield no findings.
func (m *Manager) CheckGrammarOnly(ctx context.Context, text string) ([]grammar.Finding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewInvalidRequest("text is required")
	}
	m.mu.RLock()
	g := m.state.Grammar
	m.mu.RUnlock()
	if !g.Loaded {
		return nil, errors.NewCapabilityUnavailable("grammar checking", g.Error)
	}
	return m.lintBestEffort(ctx, text), nil
}
