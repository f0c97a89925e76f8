// Package grammar provides the local grammar capability. The capability is
// opaque to callers: text in, findings out.
package grammar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hpungsan/ghostwrite/internal/logging"
)

// Finding types.
const (
	TypeSpelling       = "spelling"
	TypeRepetition     = "repetition"
	TypeSpacing        = "spacing"
	TypeCapitalization = "capitalization"
	TypeArticle        = "article"
	TypeStyle          = "style"
)

// Finding is one issue. Spans are half-open rune offsets into the checked text.
type Finding struct {
	SpanStart  int    `json:"span_start"`
	SpanEnd    int    `json:"span_end"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
	Type       string `json:"type"`
}

// Engine lints text.
type Engine interface {
	Name() string
	Lint(ctx context.Context, text string) ([]Finding, error)
}

// ErrUnavailable is returned by Loader.Load when no engine could be loaded.
var ErrUnavailable = errors.New("grammar engine unavailable")

// Loader resolves the engine: the built-in engine first, then the rule pack on disk.
type Loader struct {
	RulesFile      string
	DisableBuiltin bool
	Logger         *slog.Logger
}

// Load returns the first engine that passes its self-check.
func (l *Loader) Load(ctx context.Context) (Engine, error) {
	logger := l.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	var errs []error
	if !l.DisableBuiltin {
		engine := NewBuiltin()
		err := selfCheck(ctx, engine)
		if err == nil {
			return engine, nil
		}
		logger.Warn("grammar.builtin_failed", "error", err)
		errs = append(errs, fmt.Errorf("builtin: %w", err))
	}

	if l.RulesFile != "" {
		engine, err := LoadRulePack(l.RulesFile)
		if err == nil {
			err = selfCheck(ctx, engine)
		}
		if err == nil {
			logger.Info("grammar.rule_pack_loaded", "path", l.RulesFile, "rules", len(engine.rules))
			return engine, nil
		}
		logger.Warn("grammar.rule_pack_failed", "path", l.RulesFile, "error", err)
		errs = append(errs, fmt.Errorf("rule pack: %w", err))
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no engine configured"))
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errs...))
}

func selfCheck(ctx context.Context, e Engine) error {
	_, err := e.Lint(ctx, "This is a a test.")
	return err
}
