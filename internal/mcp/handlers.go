package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/ghostwrite/internal/config"
	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
	"github.com/hpungsan/ghostwrite/internal/logging"
	"github.com/hpungsan/ghostwrite/internal/prompts"
	"github.com/hpungsan/ghostwrite/internal/router"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	caps   router.Capabilities
	cfg    *config.Config
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(caps router.Capabilities, cfg *config.Config, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Handlers{caps: caps, cfg: cfg, logger: logger}
}

// TextRequest carries the text for check_grammar and humanize_text.
type TextRequest struct {
	Text string `json:"text"`
}

// RewriteRequest represents the arguments for rewrite_text.
type RewriteRequest struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
}

// SaveAPIKeyRequest represents the arguments for save_api_key.
type SaveAPIKeyRequest struct {
	APIKey string `json:"api_key"`
}

// GrammarOutput is returned by check_grammar.
type GrammarOutput struct {
	Findings []grammar.Finding `json:"findings"`
}

// UpgradeOutput is returned by open_upgrade.
type UpgradeOutput struct {
	URL string `json:"url"`
}

// HandleGetStatus handles the get_status tool.
func (h *Handlers) HandleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(h.caps.Status())
}

// HandleCheckGrammar handles the check_grammar tool.
func (h *Handlers) HandleCheckGrammar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	findings, err := h.caps.CheckGrammarOnly(ctx, input.Text)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(GrammarOutput{Findings: findings})
}

// HandleHumanize handles the humanize_text tool.
func (h *Handlers) HandleHumanize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[TextRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	return h.transform(ctx, input.Text, prompts.Humanize)
}

// HandleRewrite handles the rewrite_text tool.
func (h *Handlers) HandleRewrite(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[RewriteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	action := prompts.Rewrite
	switch input.Action {
	case "", prompts.Rewrite:
	case prompts.Improve:
		action = prompts.Improve
	default:
		return errorResult(errors.NewInvalidRequest("action must be rewrite or improve")), nil
	}
	return h.transform(ctx, input.Text, action)
}

func (h *Handlers) transform(ctx context.Context, text, action string) (*mcp.CallToolResult, error) {
	result, err := h.caps.RunPipeline(ctx, text, action)
	if err != nil {
		h.logger.Warn("mcp.transform_failed", "action", action, "error", err)
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSaveAPIKey handles the save_api_key tool.
func (h *Handlers) HandleSaveAPIKey(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SaveAPIKeyRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	if err := h.caps.SaveCredential(ctx, input.APIKey); err != nil {
		return errorResult(err), nil
	}
	return successResult(h.caps.Status())
}

// HandleRecheck handles the recheck_api tool.
func (h *Handlers) HandleRecheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	h.caps.RecheckRemoteService(ctx)
	return successResult(h.caps.Status())
}

// HandleOpenUpgrade handles the open_upgrade tool. MCP clients open the URL
// themselves, so nothing is launched here.
func (h *Handlers) HandleOpenUpgrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(UpgradeOutput{URL: h.cfg.SignupURL})
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	gErr := errors.As(err)

	var errorObj map[string]any
	if gErr.Code == errors.ErrInternal {
		errorObj = map[string]any{
			"code":    errors.ErrInternal,
			"message": "an internal error occurred",
			"status":  500,
		}
	} else {
		errorObj = map[string]any{
			"code":    gErr.Code,
			"message": messageWithContext(err, gErr),
			"status":  gErr.Status,
		}
		if gErr.Details != nil {
			errorObj["details"] = gErr.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// messageWithContext keeps any fmt.Errorf prefix wrapped around gErr.
func messageWithContext(err error, gErr *errors.GhostError) string {
	outer, inner := err.Error(), gErr.Error()
	if outer == inner {
		return gErr.Message
	}
	return strings.Replace(outer, inner, gErr.Message, 1)
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
