package router

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ghostwrite/internal/capability"
	"github.com/hpungsan/ghostwrite/internal/errors"
	"github.com/hpungsan/ghostwrite/internal/grammar"
)

type fakeCaps struct {
	status      capability.Status
	findings    []grammar.Finding
	grammarErr  error
	result      *capability.PipelineResult
	pipelineErr error
	saveErr     error
	savedKey    string
	lastAction  string
	rechecks    int
	panics      bool
}

func (f *fakeCaps) Status() capability.Status {
	if f.panics {
		panic("status exploded")
	}
	return f.status
}

func (f *fakeCaps) CheckGrammarOnly(context.Context, string) ([]grammar.Finding, error) {
	return f.findings, f.grammarErr
}

func (f *fakeCaps) RunPipeline(_ context.Context, _, action string) (*capability.PipelineResult, error) {
	f.lastAction = action
	return f.result, f.pipelineErr
}

func (f *fakeCaps) SaveCredential(_ context.Context, key string) error {
	f.savedKey = key
	return f.saveErr
}

func (f *fakeCaps) RecheckRemoteService(context.Context) capability.State {
	f.rechecks++
	return capability.State{}
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	caps := &fakeCaps{
		status:   capability.Status{Mode: capability.ModeAIReady},
		findings: []grammar.Finding{{SpanStart: 1, SpanEnd: 2, Message: "m"}},
		result: &capability.PipelineResult{
			TransformedText:  "out",
			GrammarFindings:  []grammar.Finding{},
			Provider:         "openai",
			CreditsRemaining: 3,
			PipelineComplete: true,
		},
	}
	var opened string
	r := New(caps, "https://signup.example", WithOpener(func(u string) error { opened = u; return nil }))

	require.Equal(t, caps.status, r.Handle(ctx, Request{Action: ActionGetStatus}))
	require.Equal(t, GrammarResponse{Success: true, Errors: caps.findings}, r.Handle(ctx, Request{Action: ActionCheckGrammar, Text: "x"}))

	got := r.Handle(ctx, Request{Action: ActionRewriteText, Text: "x"})
	require.Equal(t, TransformResponse{Success: true, Text: "out", GrammarErrors: []grammar.Finding{}, Provider: "openai", CreditsRemaining: 3, PipelineComplete: true}, got)
	require.Equal(t, "rewrite", caps.lastAction)

	r.Handle(ctx, Request{Action: ActionHumanizeText, Text: "x"})
	require.Equal(t, "humanize", caps.lastAction)

	require.Equal(t, OKResponse{Success: true}, r.Handle(ctx, Request{Action: ActionSaveAPIKey, APIKey: "gw_k"}))
	require.Equal(t, "gw_k", caps.savedKey)

	require.Equal(t, caps.status, r.Handle(ctx, Request{Action: ActionRecheckAPI}))
	require.Equal(t, 1, caps.rechecks)

	require.Equal(t, OKResponse{Success: true, URL: "https://signup.example"}, r.Handle(ctx, Request{Action: ActionOpenUpgrade}))
	require.Equal(t, "https://signup.example", opened)
}

func TestHandle_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		caps *fakeCaps
		req  Request
		want ErrorResponse
	}{
		{
			name: "unknown action",
			caps: &fakeCaps{},
			req:  Request{Action: "FLY"},
			want: ErrorResponse{Error: "Unknown action: FLY", Code: "INVALID_REQUEST"},
		},
		{
			name: "insufficient credits surfaced",
			caps: &fakeCaps{pipelineErr: errors.NewInsufficientCredits(0)},
			req:  Request{Action: ActionHumanizeText, Text: "x"},
			want: ErrorResponse{Error: "No credits available. Please purchase credits to use AI features.", Code: "INSUFFICIENT_CREDITS"},
		},
		{
			name: "grammar unavailable",
			caps: &fakeCaps{grammarErr: errors.NewCapabilityUnavailable("grammar checking", "")},
			req:  Request{Action: ActionCheckGrammar, Text: "x"},
			want: ErrorResponse{Error: "grammar checking is not available", Code: "CAPABILITY_UNAVAILABLE"},
		},
		{
			name: "save failure",
			caps: &fakeCaps{saveErr: errors.NewInvalidRequest("API key is required")},
			req:  Request{Action: ActionSaveAPIKey},
			want: ErrorResponse{Error: "API key is required", Code: "INVALID_REQUEST"},
		},
		{
			name: "untyped error hidden",
			caps: &fakeCaps{pipelineErr: stderrors.New("secret path /x")},
			req:  Request{Action: ActionRewriteText, Text: "x"},
			want: ErrorResponse{Error: "an internal error occurred", Code: "INTERNAL"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, New(tt.caps, "").Handle(ctx, tt.req))
		})
	}
}

func TestHandle_PanicRecovered(t *testing.T) {
	got := New(&fakeCaps{panics: true}, "").Handle(context.Background(), Request{Action: ActionGetStatus})
	resp, ok := got.(ErrorResponse)
	require.True(t, ok)
	require.False(t, resp.Success)
	require.Equal(t, "INTERNAL", resp.Code)
}
