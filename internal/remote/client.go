// Package remote is the client for the credit-metered transform service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/hpungsan/ghostwrite/internal/errors"
)

// Account is the credit state reported by the service.
type Account struct {
	ID      string `json:"id,omitempty"`
	Email   string `json:"email,omitempty"`
	Tier    string `json:"tier"`
	Credits int    `json:"credits"`
}

// Transformation is a completed transform.
type Transformation struct {
	Text     string
	Provider string
	// CreditsRemaining is nil when the service did not report a balance.
	CreditsRemaining   *int
	ShouldCheckGrammar bool
}

// Client calls the metered service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// RequiresCredential is true: every call is authenticated with the user's key.
func (c *Client) RequiresCredential() bool { return true }

type statusPayload struct {
	Success *bool `json:"success"`
	User    *struct {
		ID               string `json:"id"`
		Email            string `json:"email"`
		Tier             string `json:"tier"`
		CreditsRemaining *int   `json:"credits_remaining"`
	} `json:"user"`
	Error string `json:"error"`
}

type transformPayload struct {
	Success            *bool   `json:"success"`
	Result             *string `json:"result"`
	CreditsRemaining   *int    `json:"credits_remaining"`
	Provider           string  `json:"provider"`
	ShouldCheckGrammar *bool   `json:"should_check_grammar"`
	Error              string  `json:"error"`
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Status validates apiKey and returns the account's credits and tier.
func (c *Client) Status(ctx context.Context, apiKey string) (*Account, error) {
	body, err := c.post(ctx, "/api/status", apiKey, nil, "")
	if err != nil {
		return nil, err
	}

	var p statusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("status", err)
	}
	if p.Success == nil || !*p.Success {
		return nil, errors.NewServiceUnavailable(orDefault(p.Error, "status check was not successful"), nil)
	}
	if p.User == nil || p.User.CreditsRemaining == nil {
		return nil, malformed("status", fmt.Errorf("missing user credits"))
	}
	if *p.User.CreditsRemaining < 0 {
		return nil, malformed("status", fmt.Errorf("negative credits %d", *p.User.CreditsRemaining))
	}
	return &Account{
		ID:      p.User.ID,
		Email:   p.User.Email,
		Tier:    p.User.Tier,
		Credits: *p.User.CreditsRemaining,
	}, nil
}

// Transform runs action on text. Each call carries a fresh Idempotency-Key
// so a retried delivery of the same request is charged at most once.
func (c *Client) Transform(ctx context.Context, apiKey, text, action string) (*Transformation, error) {
	path := "/api/humanize"
	if action != "humanize" {
		path = "/api/rewrite"
	}
	reqBody, err := json.Marshal(map[string]string{"text": text, "action": action})
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	body, err := c.post(ctx, path, apiKey, reqBody, uuid.NewString())
	if err != nil {
		return nil, err
	}

	var p transformPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, malformed("transform", err)
	}
	if p.Success == nil || !*p.Success {
		return nil, errors.NewServiceUnavailable(orDefault(p.Error, "transform was not successful"), nil)
	}
	if p.Result == nil {
		return nil, malformed("transform", fmt.Errorf("missing result"))
	}
	if p.CreditsRemaining != nil && *p.CreditsRemaining < 0 {
		return nil, malformed("transform", fmt.Errorf("negative credits %d", *p.CreditsRemaining))
	}

	return &Transformation{
		Text:               *p.Result,
		Provider:           p.Provider,
		CreditsRemaining:   p.CreditsRemaining,
		ShouldCheckGrammar: p.ShouldCheckGrammar != nil && *p.ShouldCheckGrammar,
	}, nil
}

func (c *Client) post(ctx context.Context, path, apiKey string, body []byte, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if isOffline(err) {
			return nil, errors.NewNetworkOffline(err)
		}
		return nil, errors.NewServiceUnavailable("", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		if isOffline(err) {
			return nil, errors.NewNetworkOffline(err)
		}
		return nil, errors.NewServiceUnavailable("", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, mapStatus(resp.StatusCode, data)
	}
	return data, nil
}

// mapStatus turns a non-2xx response into the matching error kind.
func mapStatus(status int, body []byte) error {
	var p errorPayload
	_ = json.Unmarshal(body, &p)

	switch status {
	case http.StatusBadRequest:
		return errors.NewInvalidRequest(orDefault(p.Error, "invalid request"))
	case http.StatusUnauthorized:
		return errors.NewUnauthenticated(p.Error)
	case http.StatusPaymentRequired:
		return errors.NewInsufficientCredits(0)
	default:
		return errors.NewServiceUnavailable(orDefault(p.Error, fmt.Sprintf("service returned status %d", status)), nil)
	}
}

// isOffline reports local connectivity failures: the service host could not
// be resolved or routed to. A refused or reset connection, or a timeout,
// means the host answered or was reached, so the service itself is down.
func isOffline(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, syscall.ECONNREFUSED) ||
		stderrors.Is(err, syscall.ECONNRESET) {
		return false
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return false
	}
	if stderrors.Is(err, syscall.ENETUNREACH) || stderrors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}
	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return stderrors.As(err, &opErr) && opErr.Op == "dial"
}

func malformed(what string, err error) error {
	return errors.NewServiceUnavailable("malformed "+what+" response", err)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
