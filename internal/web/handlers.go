package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hpungsan/ghostwrite/internal/config"
	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/router"
)

// maxBodyBytes bounds form and message bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the bridge.
type Handlers struct {
	router   *router.Router
	caps     router.Capabilities
	cfg      *config.Config
	renderer *Renderer
	logger   *slog.Logger
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.caps.Status()
	h.renderer.renderPage(w, r, "status", StatusPageData{
		PageData: h.renderer.page("Status", "status"),
		Status:   st,
		Upgrade:  renderMarkdown(upgradeMarkdown(st.UpgradePrompt, h.cfg.SignupURL)),
	})
}

// HandleRecheck handles POST /recheck.
func (h *Handlers) HandleRecheck(w http.ResponseWriter, r *http.Request) {
	h.caps.RecheckRemoteService(r.Context())
	if r.Header.Get("HX-Request") == "true" {
		h.HandleStatus(w, r)
		return
	}
	http.Redirect(w, r, "/status", http.StatusSeeOther)
}

// HandleCheckForm handles GET /check.
func (h *Handlers) HandleCheckForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, r, "check", CheckPageData{PageData: h.renderer.page("Check", "check")})
}

// HandleCheck handles POST /check: grammar only, no credits.
func (h *Handlers) HandleCheck(w http.ResponseWriter, r *http.Request) {
	text, ok := h.formText(w, r)
	if !ok {
		return
	}

	findings, err := h.caps.CheckGrammarOnly(r.Context(), text)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.renderer.renderPage(w, r, "check", CheckPageData{
		PageData: h.renderer.page("Check", "check"),
		Text:     text,
		Result:   text,
		Findings: findings,
		Checked:  true,
	})
}

// HandleTransform handles POST /transform with form field action set to
// humanize, rewrite or improve.
func (h *Handlers) HandleTransform(w http.ResponseWriter, r *http.Request) {
	text, ok := h.formText(w, r)
	if !ok {
		return
	}
	action := r.PostFormValue("action")
	if action == "" {
		action = prompts.Humanize
	}
	if !prompts.IsValidAction(action) {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("unknown action: "+action))
		return
	}

	res, err := h.caps.RunPipeline(r.Context(), text, action)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	credits := res.CreditsRemaining
	h.renderer.renderPage(w, r, "check", CheckPageData{
		PageData:         h.renderer.page("Check", "check"),
		Text:             text,
		Result:           res.TransformedText,
		Provider:         res.Provider,
		Findings:         res.GrammarFindings,
		Checked:          true,
		CreditsRemaining: &credits,
	})
}

func (h *Handlers) formText(w http.ResponseWriter, r *http.Request) (string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form body"))
		return "", false
	}
	text := r.PostFormValue("text")
	if strings.TrimSpace(text) == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("text is required"))
		return "", false
	}
	return text, true
}

// HandleAPIStatus handles GET /api/status.
func (h *Handlers) HandleAPIStatus(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, h.caps.Status())
}

// HandleMessage handles POST /api/message, the extension bridge. Every
// well-formed message gets a 200 with the router's response; failures are
// reported in the body as {success:false}.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var msg router.Request
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		renderJSON(w, http.StatusBadRequest, router.ErrorResponse{
			Error: "invalid JSON body",
			Code:  string(errors.ErrInvalidRequest),
		})
		return
	}

	h.logger.Debug("web.message", "action", msg.Action, "text_length", len(msg.Text))
	renderJSON(w, http.StatusOK, h.router.Handle(r.Context(), msg))
}
