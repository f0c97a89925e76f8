package ledger

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/provider"
	"github.com/hpungsan/ghostwrite/internal/telemetry"
)

// IdempotencyHeader carries the client's request id.
const IdempotencyHeader = "Idempotency-Key"

const maxBodyBytes = 1 << 20

// Chain runs a transform through the provider fallback chain.
type Chain interface {
	Process(ctx context.Context, text, action string) (provider.Result, error)
}

// Handlers serves the metered API.
type Handlers struct {
	svc    *Service
	chain  Chain
	logger *slog.Logger

	// ShouldCheckGrammar is echoed to clients as should_check_grammar.
	ShouldCheckGrammar bool
}

// NewHandlers builds the API handlers.
func NewHandlers(svc *Service, chain Chain, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{svc: svc, chain: chain, logger: logger, ShouldCheckGrammar: true}
}

// TransformRequest is the body of /api/humanize and /api/rewrite.
type TransformRequest struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// TransformResponse is the success body of a transform.
type TransformResponse struct {
	Success            bool   `json:"success"`
	Result             string `json:"result"`
	CreditsRemaining   int    `json:"credits_remaining"`
	Provider           string `json:"provider"`
	ShouldCheckGrammar bool   `json:"should_check_grammar"`
}

// StatusUser is the account part of a status response.
type StatusUser struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	Tier             string `json:"tier"`
	CreditsRemaining int    `json:"credits_remaining"`
}

// ServiceStatus reports service health.
type ServiceStatus struct {
	API       string `json:"api"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse is the success body of /api/status.
type StatusResponse struct {
	Success       bool          `json:"success"`
	User          StatusUser    `json:"user"`
	ServiceStatus ServiceStatus `json:"service_status"`
}

type errorResponse struct {
	Success          bool   `json:"success"`
	Error            string `json:"error"`
	Code             string `json:"code,omitempty"`
	Details          string `json:"details,omitempty"`
	CreditsRemaining *int   `json:"credits_remaining,omitempty"`
}

// HandleHumanize handles POST /api/humanize.
func (h *Handlers) HandleHumanize(w http.ResponseWriter, r *http.Request) {
	h.handleTransform(w, r, prompts.Humanize)
}

// HandleRewrite handles POST /api/rewrite. The body may ask for "improve" instead.
func (h *Handlers) HandleRewrite(w http.ResponseWriter, r *http.Request) {
	h.handleTransform(w, r, prompts.Rewrite)
}

func (h *Handlers) handleTransform(w http.ResponseWriter, r *http.Request, action string) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "ledger.transform")
	defer span.End()
	span.SetAttributes(attribute.String("action", action))

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "", nil, "")
		return
	}

	var req TransformRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Invalid input: text is required", string(errors.ErrInvalidRequest), nil, "")
		return
	}
	if action == prompts.Rewrite && req.Action == prompts.Improve {
		action = prompts.Improve
	}

	user, err := h.svc.UserByAPIKey(ctx, bearer(r))
	if err != nil {
		h.fail(w, span, err)
		return
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	requestID := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if prev, err := h.svc.Lookup(ctx, user.ID, requestID); err != nil {
		h.fail(w, span, err)
		return
	} else if prev != nil {
		h.logger.Info("ledger.replay", "user_id", user.ID, "request_id", requestID)
		h.writeTransform(w, prev)
		return
	}

	ok, err := h.svc.HasEnoughCredits(ctx, user.ID, 1)
	if err != nil {
		h.fail(w, span, err)
		return
	}
	if !ok {
		h.fail(w, span, errors.NewInsufficientCredits(0))
		return
	}

	start := time.Now()
	out, err := h.chain.Process(ctx, req.Text, action)
	if err != nil {
		h.logger.Error("ledger.providers_failed",
			"user_id", user.ID,
			"action", action,
			"all_failed", stderrors.Is(err, provider.ErrAllProvidersFailed),
			"error", err,
		)
		h.fail(w, span, errors.NewServiceUnavailable("", err))
		return
	}

	charged, err := h.svc.Charge(ctx, ChargeInput{
		UserID:     user.ID,
		Action:     action,
		TextLength: utf8.RuneCountInString(req.Text),
		Credits:    1,
		Provider:   out.Provider,
		Result:     out.Text,
		RequestID:  requestID,
	})
	if err != nil {
		h.fail(w, span, err)
		return
	}

	h.logger.Info("ledger.charged",
		"user_id", user.ID,
		"action", action,
		"provider", charged.Provider,
		"credits_remaining", charged.CreditsRemaining,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	h.writeTransform(w, charged)
}

func (h *Handlers) writeTransform(w http.ResponseWriter, c *ChargeResult) {
	writeJSON(w, http.StatusOK, TransformResponse{
		Success:            true,
		Result:             c.Result,
		CreditsRemaining:   c.CreditsRemaining,
		Provider:           c.Provider,
		ShouldCheckGrammar: h.ShouldCheckGrammar,
	})
}

// HandleStatus handles POST /api/status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := telemetry.Tracer().Start(r.Context(), "ledger.status")
	defer span.End()

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed", "", nil, "")
		return
	}

	user, err := h.svc.UserByAPIKey(ctx, bearer(r))
	if err != nil {
		h.fail(w, span, err)
		return
	}
	balance, err := h.svc.Balance(ctx, user.ID)
	if err != nil {
		h.fail(w, span, err)
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Success: true,
		User: StatusUser{
			ID:               user.ID,
			Email:            user.Email,
			Tier:             user.Tier,
			CreditsRemaining: balance,
		},
		ServiceStatus: ServiceStatus{
			API:       "operational",
			Timestamp: h.svc.now().UTC().Format(time.RFC3339),
		},
	})
}

func (h *Handlers) fail(w http.ResponseWriter, span trace.Span, err error) {
	gErr := errors.As(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, gErr.Message)

	var credits *int
	details := ""
	switch gErr.Code {
	case errors.ErrInsufficientCredits:
		remaining := 0
		if v, ok := gErr.Details["credits_remaining"].(int); ok {
			remaining = v
		}
		credits = &remaining
		gErr = &errors.GhostError{Code: gErr.Code, Status: gErr.Status, Message: "Insufficient credits"}
	case errors.ErrServiceUnavailable:
		details = "Both primary and fallback services failed"
	case errors.ErrInternal:
		h.logger.Error("ledger.internal_error", "error", err)
		gErr = &errors.GhostError{Code: gErr.Code, Status: gErr.Status, Message: "Internal server error"}
	}
	writeError(w, gErr.Status, gErr.Message, string(gErr.Code), credits, details)
}

func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string, credits *int, details string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code, CreditsRemaining: credits, Details: details})
}
