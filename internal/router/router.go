// Package router dispatches surface messages (extension bridge, MCP, CLI)
// to the capability manager and shapes their responses.
package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hpungsan/ghostwrite/internal/capability"
	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/prompts"
)

// Message actions.
const (
	ActionGetStatus    = "GET_STATUS"
	ActionCheckGrammar = "CHECK_GRAMMAR"
	ActionHumanizeText = "HUMANIZE_TEXT"
	ActionRewriteText  = "REWRITE_TEXT"
	ActionSaveAPIKey   = "SAVE_API_KEY"
	ActionRecheckAPI   = "RECHECK_API"
	ActionOpenUpgrade  = "OPEN_UPGRADE"
)

// Actions lists every action the router accepts.
var Actions = []string{
	ActionGetStatus,
	ActionCheckGrammar,
	ActionHumanizeText,
	ActionRewriteText,
	ActionSaveAPIKey,
	ActionRecheckAPI,
	ActionOpenUpgrade,
}

// Capabilities is the subset of capability.Manager the router drives.
type Capabilities interface {
	Status() capability.Status
	CheckGrammarOnly(ctx context.Context, text string) ([]grammar.Finding, error)
	RunPipeline(ctx context.Context, text, action string) (*capability.PipelineResult, error)
	SaveCredential(ctx context.Context, key string) error
	RecheckRemoteService(ctx context.Context) capability.State
}

// Request is one inbound message.
type Request struct {
	Action string `json:"action"`
	Text   string `json:"text,omitempty"`
	APIKey string `json:"apiKey,omitempty"`
}

// ErrorResponse is returned for every failure.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
}

// GrammarResponse answers CHECK_GRAMMAR.
type GrammarResponse struct {
	Success bool              `json:"success"`
	Errors  []grammar.Finding `json:"errors"`
}

// TransformResponse answers HUMANIZE_TEXT and REWRITE_TEXT.
type TransformResponse struct {
	Success          bool              `json:"success"`
	Text             string            `json:"text"`
	GrammarErrors    []grammar.Finding `json:"grammarErrors"`
	Provider         string            `json:"provider"`
	CreditsRemaining int               `json:"creditsRemaining"`
	PipelineComplete bool              `json:"pipelineComplete"`
}

// OKResponse answers SAVE_API_KEY and OPEN_UPGRADE.
type OKResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`
}

// Router maps messages to capability operations.
type Router struct {
	caps      Capabilities
	signupURL string
	open      func(url string) error
	logger    *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithOpener sets how OPEN_UPGRADE opens the signup page. Without it the
// URL is only returned to the caller.
func WithOpener(open func(url string) error) Option {
	return func(r *Router) { r.open = open }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New builds a router.
func New(caps Capabilities, signupURL string, opts ...Option) *Router {
	r := &Router{caps: caps, signupURL: signupURL, logger: logging.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle processes req. It never panics and never returns a bare error:
// failures come back as ErrorResponse.
func (r *Router) Handle(ctx context.Context, req Request) (resp any) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("router.panic", "action", req.Action, "panic", p)
			resp = ErrorResponse{Error: fmt.Sprintf("internal error: %v", p), Code: string(errors.ErrInternal)}
		}
	}()

	switch req.Action {
	case ActionGetStatus:
		return r.caps.Status()

	case ActionCheckGrammar:
		findings, err := r.caps.CheckGrammarOnly(ctx, req.Text)
		if err != nil {
			return r.fail(req.Action, err)
		}
		return GrammarResponse{Success: true, Errors: findings}

	case ActionHumanizeText, ActionRewriteText:
		action := prompts.Humanize
		if req.Action == ActionRewriteText {
			action = prompts.Rewrite
		}
		res, err := r.caps.RunPipeline(ctx, req.Text, action)
		if err != nil {
			return r.fail(req.Action, err)
		}
		return TransformResponse{
			Success:          true,
			Text:             res.TransformedText,
			GrammarErrors:    res.GrammarFindings,
			Provider:         res.Provider,
			CreditsRemaining: res.CreditsRemaining,
			PipelineComplete: res.PipelineComplete,
		}

	case ActionSaveAPIKey:
		if err := r.caps.SaveCredential(ctx, req.APIKey); err != nil {
			return r.fail(req.Action, err)
		}
		return OKResponse{Success: true}

	case ActionRecheckAPI:
		r.caps.RecheckRemoteService(ctx)
		return r.caps.Status()

	case ActionOpenUpgrade:
		if r.open != nil {
			if err := r.open(r.signupURL); err != nil {
				r.logger.Warn("router.open_upgrade_failed", "url", r.signupURL, "error", err)
			}
		}
		return OKResponse{Success: true, URL: r.signupURL}

	default:
		return ErrorResponse{Error: "Unknown action: " + req.Action, Code: string(errors.ErrInvalidRequest)}
	}
}

func (r *Router) fail(action string, err error) ErrorResponse {
	gErr := errors.As(err)
	r.logger.Warn("router.action_failed", "action", action, "code", gErr.Code, "error", err)
	msg := gErr.Message
	if gErr.Code == errors.ErrInternal {
		msg = "an internal error occurred"
	}
	return ErrorResponse{Error: msg, Code: string(gErr.Code)}
}
