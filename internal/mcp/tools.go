package mcp

import "github.com/mark3labs/mcp-go/mcp"

var getStatusToolDef = mcp.NewTool("get_status",
	mcp.WithDescription("Report the current capability mode (AI_READY, BASIC_ONLY, ERROR, INITIALIZING), "+
		"which features are enabled, the credit balance and any upgrade prompt."),
)

var checkGrammarToolDef = mcp.NewTool("check_grammar",
	mcp.WithDescription("Run the local grammar engine over text. Free and available offline. "+
		"Findings carry rune offsets into the submitted text."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to check"),
	),
)

var humanizeToolDef = mcp.NewTool("humanize_text",
	mcp.WithDescription("Rewrite text so it reads naturally, then grammar-check the result. Costs 1 credit."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to humanize"),
	),
)

var rewriteToolDef = mcp.NewTool("rewrite_text",
	mcp.WithDescription("Rewrite text for clarity and flow, then grammar-check the result. Costs 1 credit."),
	mcp.WithString("text",
		mcp.Required(),
		mcp.Description("Text to rewrite"),
	),
	mcp.WithString("action",
		mcp.Description("rewrite (default) or improve"),
		mcp.Enum("rewrite", "improve"),
	),
)

var saveAPIKeyToolDef = mcp.NewTool("save_api_key",
	mcp.WithDescription("Persist the GhostWrite API key and re-check the account. "+
		"The key is saved even if the service cannot be reached."),
	mcp.WithString("api_key",
		mcp.Required(),
		mcp.Description("API key issued at signup (gw_...)"),
	),
)

var recheckToolDef = mcp.NewTool("recheck_api",
	mcp.WithDescription("Query the service again for the account and credit balance, then report status."),
)

var openUpgradeToolDef = mcp.NewTool("open_upgrade",
	mcp.WithDescription("Return the signup page URL for enabling or refilling AI features."),
)
