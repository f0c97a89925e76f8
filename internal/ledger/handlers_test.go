package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/ghostwrite/internal/db"
	"github.com/hpungsan/ghostwrite/internal/provider"
)

type fakeChain struct {
	result provider.Result
	err    error
	calls  int
	action string
}

func (f *fakeChain) Process(_ context.Context, text, action string) (provider.Result, error) {
	f.calls++
	f.action = action
	if f.err != nil {
		return provider.Result{}, f.err
	}
	return f.result, nil
}

func setupHandlers(t *testing.T, credits int) (*Handlers, *fakeChain, *db.User) {
	t.Helper()
	svc := setupService(t)
	u, err := svc.CreateUser(context.Background(), "a@example.com", credits)
	require.NoError(t, err)
	chain := &fakeChain{result: provider.Result{Text: "Humanized.", Provider: "gemini"}}
	return NewHandlers(svc, chain, nil), chain, u
}

func do(t *testing.T, srv http.Handler, method, path, key, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec, out
}

func TestHandleHumanize_Success(t *testing.T) {
	h, chain, u := setupHandlers(t, 5)
	srv := NewServer(h, "127.0.0.1", 0).Handler

	rec, body := do(t, srv, http.MethodPost, "/api/humanize", u.APIKey, `{"text":"We leverage synergy."}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Humanized.", body["result"])
	require.Equal(t, float64(4), body["credits_remaining"])
	require.Equal(t, "gemini", body["provider"])
	require.Equal(t, true, body["should_check_grammar"])
	require.Equal(t, "humanize", chain.action)
}

func TestHandleRewrite_ImproveAction(t *testing.T) {
	h, chain, u := setupHandlers(t, 5)
	srv := NewServer(h, "127.0.0.1", 0).Handler

	rec, _ := do(t, srv, http.MethodPost, "/api/rewrite", u.APIKey, `{"text":"x","action":"improve"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "improve", chain.action)

	rec, _ = do(t, srv, http.MethodPost, "/api/rewrite", u.APIKey, `{"text":"x","action":"humanize"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "rewrite", chain.action)
}

func TestHandleTransform_Errors(t *testing.T) {
	tests := []struct {
		name     string
		credits  int
		method   string
		key      string
		body     string
		chainErr error
		status   int
		code     string
	}{
		{name: "method", credits: 1, method: http.MethodGet, status: http.StatusMethodNotAllowed},
		{name: "empty text", credits: 1, method: http.MethodPost, key: "valid", body: `{"text":"  "}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "text not string", credits: 1, method: http.MethodPost, key: "valid", body: `{"text":5}`, status: http.StatusBadRequest, code: "INVALID_REQUEST"},
		{name: "no key", credits: 1, method: http.MethodPost, body: `{"text":"hi"}`, status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "bad key", credits: 1, method: http.MethodPost, key: "gw_nope", body: `{"text":"hi"}`, status: http.StatusUnauthorized, code: "UNAUTHENTICATED"},
		{name: "no credits", credits: 0, method: http.MethodPost, key: "valid", body: `{"text":"hi"}`, status: http.StatusPaymentRequired, code: "INSUFFICIENT_CREDITS"},
		{name: "providers down", credits: 1, method: http.MethodPost, key: "valid", body: `{"text":"hi"}`, chainErr: fmt.Errorf("%w: x", provider.ErrAllProvidersFailed), status: http.StatusServiceUnavailable, code: "SERVICE_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, chain, u := setupHandlers(t, tt.credits)
			chain.err = tt.chainErr
			key := tt.key
			if key == "valid" {
				key = u.APIKey
			}

			rec, body := do(t, NewServer(h, "127.0.0.1", 0).Handler, tt.method, "/api/humanize", key, tt.body, nil)
			require.Equal(t, tt.status, rec.Code)
			require.NotEqual(t, true, body["success"])
			if tt.code != "" {
				require.Equal(t, tt.code, body["code"])
			}
			if tt.code == "INSUFFICIENT_CREDITS" {
				require.Equal(t, float64(0), body["credits_remaining"])
				require.Equal(t, 0, chain.calls, "no provider call without credits")
			}

			bal, err := h.svc.Balance(context.Background(), u.ID)
			require.NoError(t, err)
			require.Equal(t, tt.credits, bal, "failed requests are never charged")
		})
	}
}

func TestHandleTransform_IdempotencyKey(t *testing.T) {
	h, chain, u := setupHandlers(t, 5)
	srv := NewServer(h, "127.0.0.1", 0).Handler
	hdr := map[string]string{IdempotencyHeader: "req-1"}

	_, first := do(t, srv, http.MethodPost, "/api/humanize", u.APIKey, `{"text":"hi"}`, hdr)
	_, second := do(t, srv, http.MethodPost, "/api/humanize", u.APIKey, `{"text":"hi"}`, hdr)

	require.Equal(t, first, second)
	require.Equal(t, 1, chain.calls)
	require.Equal(t, float64(4), second["credits_remaining"])
}

func TestHandleStatus(t *testing.T) {
	h, _, u := setupHandlers(t, 7)
	srv := NewServer(h, "127.0.0.1", 0).Handler

	rec, body := do(t, srv, http.MethodPost, "/api/status", u.APIKey, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["success"])
	user := body["user"].(map[string]any)
	require.Equal(t, u.ID, user["id"])
	require.Equal(t, "trial", user["tier"])
	require.Equal(t, float64(7), user["credits_remaining"])
	svc := body["service_status"].(map[string]any)
	require.Equal(t, "operational", svc["api"])
	require.NotEmpty(t, svc["timestamp"])

	rec, _ = do(t, srv, http.MethodPost, "/api/status", "gw_bad", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, srv, http.MethodGet, "/api/status", u.APIKey, "", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
