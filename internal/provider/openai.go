package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hpungsan/ghostwrite/internal/prompts"
)

const defaultOpenAIModel = "gpt-3.5-turbo"

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // Optional: for Azure or compatible APIs
	Model      string
	HTTPClient *http.Client
}

// OpenAI uses the chat completions API.
type OpenAI struct {
	client *openai.Client
	model  string
}

// NewOpenAI builds an OpenAI client. A missing key is reported by Process.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	o := &OpenAI{model: model}
	if cfg.APIKey == "" {
		return o
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	o.client = openai.NewClientWithConfig(clientCfg)
	return o
}

// Name implements Provider.
func (o *OpenAI) Name() string { return "openai" }

// Model returns the configured model.
func (o *OpenAI) Model() string { return o.model }

// Process implements Provider.
func (o *OpenAI) Process(ctx context.Context, text, action string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("openai: %w", ErrNotConfigured)
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompts.SystemPrompt(action, prompts.Options{})},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Temperature: 0.7,
		MaxTokens:   2048,
		TopP:        1.0,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices: %w", ErrEmptyResponse)
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return out, nil
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError("openai", apiErr.HTTPStatusCode, []byte(apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError("openai", reqErr.HTTPStatusCode, []byte(reqErr.Error()))
	}
	return fmt.Errorf("openai: %w: %v", ErrUnavailable, err)
}
