// Package provider talks to the hosted language models that perform text
// transforms. Gemini is the primary model and OpenAI the secondary.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/telemetry"
)

// Normalized provider failures. Callers match with errors.Is.
var (
	ErrUnauthorized       = errors.New("provider unauthorized")
	ErrUnavailable        = errors.New("provider unavailable")
	ErrRateLimited        = errors.New("provider rate limited")
	ErrNotConfigured      = errors.New("provider api key not configured")
	ErrEmptyResponse      = errors.New("provider returned empty response")
	ErrAllProvidersFailed = errors.New("all providers failed")
)

// Provider transforms text for an action.
type Provider interface {
	Name() string
	Process(ctx context.Context, text, action string) (string, error)
}

// Result is the transformed text plus the provider that produced it.
type Result struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
}

// Fallback tries Primary and, on any failure, Secondary exactly once.
type Fallback struct {
	Primary   Provider
	Secondary Provider
	Logger    *slog.Logger
}

// Process runs the chain. When both providers fail the error wraps
// ErrAllProvidersFailed and each provider's error.
func (f *Fallback) Process(ctx context.Context, text, action string) (Result, error) {
	if !prompts.IsValidAction(action) {
		return Result{}, fmt.Errorf("unknown action %q", action)
	}
	logger := f.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	out, primaryErr := run(ctx, f.Primary, text, action)
	if primaryErr == nil {
		return Result{Text: out, Provider: f.Primary.Name()}, nil
	}
	logger.Warn("provider.primary_failed",
		"provider", nameOf(f.Primary),
		"action", action,
		"error", primaryErr,
	)

	if f.Secondary == nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrAllProvidersFailed, nameOf(f.Primary), primaryErr)
	}

	out, secondaryErr := run(ctx, f.Secondary, text, action)
	if secondaryErr == nil {
		logger.Info("provider.fallback_used", "provider", f.Secondary.Name(), "action", action)
		return Result{Text: out, Provider: f.Secondary.Name()}, nil
	}
	logger.Error("provider.all_failed",
		"action", action,
		"primary_error", primaryErr,
		"secondary_error", secondaryErr,
	)
	return Result{}, fmt.Errorf("%w: %s: %w; %s: %w",
		ErrAllProvidersFailed,
		nameOf(f.Primary), primaryErr,
		nameOf(f.Secondary), secondaryErr,
	)
}

// Names lists the providers in the chain, primary first.
func (f *Fallback) Names() []string {
	names := []string{nameOf(f.Primary)}
	if f.Secondary != nil {
		names = append(names, f.Secondary.Name())
	}
	return names
}

func run(ctx context.Context, p Provider, text, action string) (string, error) {
	if p == nil {
		return "", ErrNotConfigured
	}
	ctx, span := telemetry.Tracer().Start(ctx, "provider.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider", p.Name()),
		attribute.String("action", action),
		attribute.Int("text.length", len([]rune(text))),
	)

	out, err := p.Process(ctx, text, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return out, nil
}

func nameOf(p Provider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

// TestConnection sends a one-word humanize request through p.
func TestConnection(ctx context.Context, p Provider) error {
	_, err := p.Process(ctx, "Test", prompts.Humanize)
	return err
}

// statusError maps a non-2xx HTTP status to a normalized error.
func statusError(name string, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", name, ErrUnauthorized)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%s: %w", name, ErrRateLimited)
	case status >= 500:
		return fmt.Errorf("%s: %w (status %d)", name, ErrUnavailable, status)
	default:
		return fmt.Errorf("%s api error: status %d: %s", name, status, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
