package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Transform modes select which transformer backs the AI pipeline.
const (
	TransformRemote = "remote" // credit-metered service
	TransformLocal  = "local"  // providers called directly, no credits
)

// Config holds application configuration.
type Config struct {
	// APIEndpoint is the base URL of the credit-metered transform service.
	APIEndpoint string `json:"api_endpoint"`

	// TransformMode is "remote" (default) or "local".
	TransformMode string `json:"transform_mode,omitempty"`

	// RecheckIntervalSeconds controls how often a connected client re-polls its balance.
	RecheckIntervalSeconds int `json:"recheck_interval_seconds,omitempty"`

	// LowCreditThreshold triggers a warning when 0 < credits <= threshold.
	LowCreditThreshold int `json:"low_credit_threshold,omitempty"`

	// SignupURL is opened by OPEN_UPGRADE.
	SignupURL string `json:"signup_url,omitempty"`

	// GrammarRulesFile is the rule pack loaded when the built-in engine is unavailable.
	// Relative paths resolve against the base directory.
	GrammarRulesFile string `json:"grammar_rules_file,omitempty"`

	// DisableBuiltinGrammar skips the in-process engine and goes straight to the rule pack.
	DisableBuiltinGrammar bool `json:"disable_builtin_grammar,omitempty"`

	// RequestTimeoutSeconds bounds each call to the transform service or a provider.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// UIBind and UIPort locate the local extension bridge.
	UIBind string `json:"ui_bind,omitempty"`
	UIPort int    `json:"ui_port,omitempty"`

	// ServeBind and ServePort locate the metered service started by `ghostwrite serve`.
	ServeBind string `json:"serve_bind,omitempty"`
	ServePort int    `json:"serve_port,omitempty"`

	// InitialCredits is granted to users created through `ghostwrite users create`.
	InitialCredits int `json:"initial_credits,omitempty"`

	// SkipServerGrammarCheck makes the service tell clients not to run the grammar stage.
	SkipServerGrammarCheck bool `json:"skip_server_grammar_check,omitempty"`

	// Provider settings. Keys come from the environment only.
	GeminiModel   string `json:"gemini_model,omitempty"`
	GeminiBaseURL string `json:"gemini_base_url,omitempty"`
	OpenAIModel   string `json:"openai_model,omitempty"`
	OpenAIBaseURL string `json:"openai_base_url,omitempty"`
	GeminiAPIKey  string `json:"-"`
	OpenAIAPIKey  string `json:"-"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		APIEndpoint:            "https://api.ghostwrite.dev",
		TransformMode:          TransformRemote,
		RecheckIntervalSeconds: 300,
		LowCreditThreshold:     10,
		SignupURL:              "https://ghostwrite.dev/signup",
		GrammarRulesFile:       "grammar-rules.yaml",
		RequestTimeoutSeconds:  60,
		LogLevel:               "info",
		UIBind:                 "127.0.0.1",
		UIPort:                 8787,
		ServeBind:              "127.0.0.1",
		ServePort:              8788,
		InitialCredits:         100,
		GeminiModel:            "gemini-pro",
		OpenAIModel:            "gpt-3.5-turbo",
	}
}

// Load loads configuration from baseDir/config.json, then applies environment overrides.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.ghostwrite.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ResolvePath returns p unchanged if absolute, else joined onto baseDir.
func ResolvePath(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.APIEndpoint = pickString(overlay.APIEndpoint, base.APIEndpoint)
	result.TransformMode = pickString(overlay.TransformMode, base.TransformMode)
	result.SignupURL = pickString(overlay.SignupURL, base.SignupURL)
	result.GrammarRulesFile = pickString(overlay.GrammarRulesFile, base.GrammarRulesFile)
	result.LogLevel = pickString(overlay.LogLevel, base.LogLevel)
	result.UIBind = pickString(overlay.UIBind, base.UIBind)
	result.ServeBind = pickString(overlay.ServeBind, base.ServeBind)
	result.GeminiModel = pickString(overlay.GeminiModel, base.GeminiModel)
	result.GeminiBaseURL = pickString(overlay.GeminiBaseURL, base.GeminiBaseURL)
	result.OpenAIModel = pickString(overlay.OpenAIModel, base.OpenAIModel)
	result.OpenAIBaseURL = pickString(overlay.OpenAIBaseURL, base.OpenAIBaseURL)
	result.GeminiAPIKey = pickString(overlay.GeminiAPIKey, base.GeminiAPIKey)
	result.OpenAIAPIKey = pickString(overlay.OpenAIAPIKey, base.OpenAIAPIKey)

	result.RecheckIntervalSeconds = pickInt(overlay.RecheckIntervalSeconds, base.RecheckIntervalSeconds)
	result.LowCreditThreshold = pickInt(overlay.LowCreditThreshold, base.LowCreditThreshold)
	result.RequestTimeoutSeconds = pickInt(overlay.RequestTimeoutSeconds, base.RequestTimeoutSeconds)
	result.UIPort = pickInt(overlay.UIPort, base.UIPort)
	result.ServePort = pickInt(overlay.ServePort, base.ServePort)
	result.InitialCredits = pickInt(overlay.InitialCredits, base.InitialCredits)
	result.DBMaxOpenConns = pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)

	// Booleans: overlay wins if true, else base
	result.DisableBuiltinGrammar = base.DisableBuiltinGrammar || overlay.DisableBuiltinGrammar
	result.SkipServerGrammarCheck = base.SkipServerGrammarCheck || overlay.SkipServerGrammarCheck

	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.TransformMode {
	case TransformRemote, TransformLocal:
	default:
		return errors.New("transform_mode must be one of: remote, local")
	}
	if c.TransformMode == TransformRemote && strings.TrimSpace(c.APIEndpoint) == "" {
		return errors.New("api_endpoint is required in remote mode")
	}
	if c.RecheckIntervalSeconds < 0 {
		return errors.New("recheck_interval_seconds must be non-negative")
	}
	return nil
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string{}, a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
