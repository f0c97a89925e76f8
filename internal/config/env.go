package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Env holds settings read from the process environment. Provider keys are only
// ever read from here so they never land in config.json.
type Env struct {
	APIEndpoint   string `env:"GHOSTWRITE_API_ENDPOINT"`
	TransformMode string `env:"GHOSTWRITE_TRANSFORM_MODE"`
	LogLevel      string `env:"GHOSTWRITE_LOG_LEVEL"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`
	GeminiBaseURL string `env:"GEMINI_BASE_URL"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	ServePort     int    `env:"GHOSTWRITE_SERVE_PORT"`
	UIPort        int    `env:"GHOSTWRITE_UI_PORT"`
}

// ParseEnv loads Env from environment variables.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// ApplyEnv overlays non-empty environment values onto cfg.
func ApplyEnv(cfg *Config) error {
	e, err := ParseEnv()
	if err != nil {
		return err
	}
	merged := Merge(cfg, &Config{
		APIEndpoint:   e.APIEndpoint,
		TransformMode: e.TransformMode,
		LogLevel:      e.LogLevel,
		GeminiAPIKey:  e.GeminiAPIKey,
		GeminiModel:   e.GeminiModel,
		GeminiBaseURL: e.GeminiBaseURL,
		OpenAIAPIKey:  e.OpenAIAPIKey,
		OpenAIModel:   e.OpenAIModel,
		OpenAIBaseURL: e.OpenAIBaseURL,
		ServePort:     e.ServePort,
		UIPort:        e.UIPort,
	})
	*cfg = *merged
	return nil
}
