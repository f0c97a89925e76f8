package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ghostwrite/internal/config"
	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/ledger"
	"github.com/hpungsan/ghostwrite/internal/provider"
)

// echoChain returns its input, so grammar findings on the output are predictable.
type echoChain struct{}

func (echoChain) Process(_ context.Context, text, _ string) (provider.Result, error) {
	return provider.Result{Text: text, Provider: "gemini"}, nil
}

type testEnv struct {
	baseDir string
	cfg     *config.Config
}

// setupTestEnv starts a metered service on the ledger under a temp base dir
// and points the client config at it.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	baseDir := t.TempDir()

	database, err := db.InitLedger(baseDir)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	h := ledger.NewHandlers(ledger.NewService(database), echoChain{}, nil)
	ts := httptest.NewServer(ledger.NewServer(h, "", 0).Handler)
	t.Cleanup(ts.Close)

	cfg := config.DefaultConfig()
	cfg.APIEndpoint = ts.URL
	cfg.RequestTimeoutSeconds = 5
	return &testEnv{baseDir: baseDir, cfg: cfg}
}

// run executes one CLI invocation with a fresh runtime and returns stdout.
func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rt := newRuntime(e.baseDir, e.cfg, io.Discard)
	defer rt.close()

	var out bytes.Buffer
	app := newCLIApp(rt)
	app.Writer = &out
	err := app.Run(append([]string{"ghostwrite"}, args...))
	return out.String(), err
}

func (e *testEnv) runJSON(t *testing.T, args ...string) map[string]any {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v), out)
	return v
}

func TestCLI_EndToEnd(t *testing.T) {
	env := setupTestEnv(t)

	// Fresh install: grammar only, no remote call.
	status := env.runJSON(t, "status")
	require.Equal(t, "BASIC_ONLY", status["mode"])
	require.Equal(t, "SIGN_UP", status["upgradePrompt"].(map[string]any)["action"])

	user := env.runJSON(t, "users", "create", "--email", "writer@example.com", "--credits", "2")
	key := user["api_key"].(string)
	require.True(t, strings.HasPrefix(key, "gw_"))
	require.Equal(t, "trial", user["tier"])

	status = env.runJSON(t, "save-key", key)
	require.Equal(t, "AI_READY", status["mode"])
	require.Equal(t, float64(2), status["credits"].(map[string]any)["remaining"])

	res := env.runJSON(t, "humanize", "I saw teh cat.")
	require.Equal(t, "I saw teh cat.", res["text"])
	require.Equal(t, "gemini", res["provider"])
	require.Equal(t, float64(1), res["credits_remaining"])
	require.Equal(t, true, res["pipeline_complete"])
	findings := res["grammar_errors"].([]any)
	require.Len(t, findings, 1)
	require.Equal(t, "the", findings[0].(map[string]any)["suggestion"])

	out, err := env.run(t, "rewrite", "--improve", "--text-only", "Fine text.")
	require.NoError(t, err)
	require.Equal(t, "Fine text.\n", out)

	// Balance is now zero: the next transform fails without calling the service.
	_, err = env.run(t, "humanize", "again")
	require.Error(t, err)
	require.Contains(t, err.Error(), "INSUFFICIENT_CREDITS")

	status = env.runJSON(t, "recheck")
	require.Equal(t, "BASIC_ONLY", status["mode"])
	require.Equal(t, "BUY_CREDITS", status["upgradePrompt"].(map[string]any)["action"])

	tiered := env.runJSON(t, "users", "tier", "--tier", "paid", "--add", "50", user["id"].(string))
	require.Equal(t, "paid", tiered["tier"])
	require.Equal(t, float64(50), tiered["credits_remaining"])

	out, err = env.run(t, "users", "usage", user["id"].(string))
	require.NoError(t, err)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 2)
}

func TestCLI_Check(t *testing.T) {
	env := setupTestEnv(t)

	out := env.runJSON(t, "check", "This is is fine.")
	findings := out["findings"].([]any)
	require.Len(t, findings, 1)
	require.Equal(t, "repetition", findings[0].(map[string]any)["type"])
}

func TestCLI_Prompts(t *testing.T) {
	env := setupTestEnv(t)

	out, err := env.run(t, "prompts")
	require.NoError(t, err)
	var list []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 3)
	require.Equal(t, "humanize", list[0]["action"])

	out, err = env.run(t, "prompts", "--tone", "casual", "rewrite")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "[Tone: casual]"))

	_, err = env.run(t, "prompts", "summarize")
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVALID_REQUEST")
}

func TestCLIErrorHandling(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "save empty key", args: []string{"save-key", "  "}, want: "INVALID_REQUEST"},
		{name: "tier without id", args: []string{"users", "tier", "--tier", "paid"}, want: "INVALID_REQUEST"},
		{name: "bad tier", args: []string{"users", "tier", "--tier", "gold", "01ABC"}, want: "INVALID_REQUEST"},
		{name: "unknown user", args: []string{"users", "tier", "--tier", "paid", "01ABC"}, want: "NOT_FOUND"},
		{name: "blank email", args: []string{"users", "create", "--email", " "}, want: "INVALID_REQUEST"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, tt.args...)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCLI_LocalMode(t *testing.T) {
	env := setupTestEnv(t)
	env.cfg.TransformMode = config.TransformLocal

	status := env.runJSON(t, "status")
	require.Equal(t, "AI_READY", status["mode"])
	require.Nil(t, status["upgradePrompt"])
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{args: []string{"ghostwrite"}, want: false},
		{args: []string{"ghostwrite", "status"}, want: true},
		{args: []string{"ghostwrite", "users"}, want: true},
		{args: []string{"ghostwrite", "--version"}, want: true},
		{args: []string{"ghostwrite", "-h"}, want: true},
		{args: []string{"ghostwrite", "frobnicate"}, want: false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, isCLIMode(tt.args), tt.args)
	}
}

func TestIsHelpOrVersion(t *testing.T) {
	require.True(t, isHelpOrVersion([]string{"ghostwrite", "help"}))
	require.True(t, isHelpOrVersion([]string{"ghostwrite", "-v"}))
	require.False(t, isHelpOrVersion([]string{"ghostwrite", "status"}))
	require.False(t, isHelpOrVersion([]string{"ghostwrite"}))
}

func TestReadStdinWithLimit(t *testing.T) {
	got, err := readStdinWithLimit(strings.NewReader("  hello \n"), 16)
	require.NoError(t, err)
	require.Equal(t, "hello", got)

	_, err = readStdinWithLimit(strings.NewReader(strings.Repeat("x", 17)), 16)
	require.Error(t, err)
	require.Contains(t, err.Error(), "INVALID_REQUEST")
}
