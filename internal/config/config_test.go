package config

import (
	"os"
	"path/filepath"
	"testing"
)

// clearEnv blanks every variable Env reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GHOSTWRITE_API_ENDPOINT", "GHOSTWRITE_TRANSFORM_MODE", "GHOSTWRITE_LOG_LEVEL",
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_BASE_URL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
		"GHOSTWRITE_SERVE_PORT", "GHOSTWRITE_UI_PORT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	def := DefaultConfig()
	if cfg.APIEndpoint != def.APIEndpoint {
		t.Fatalf("APIEndpoint = %q, want %q", cfg.APIEndpoint, def.APIEndpoint)
	}
	if cfg.RecheckIntervalSeconds != 300 {
		t.Fatalf("RecheckIntervalSeconds = %d, want 300", cfg.RecheckIntervalSeconds)
	}
	if cfg.TransformMode != TransformRemote {
		t.Fatalf("TransformMode = %q, want %q", cfg.TransformMode, TransformRemote)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"api_endpoint": "http://localhost:9000", "low_credit_threshold": 3}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIEndpoint != "http://localhost:9000" {
		t.Fatalf("APIEndpoint = %q, want %q", cfg.APIEndpoint, "http://localhost:9000")
	}
	if cfg.LowCreditThreshold != 3 {
		t.Fatalf("LowCreditThreshold = %d, want 3", cfg.LowCreditThreshold)
	}
	if cfg.UIPort != DefaultConfig().UIPort {
		t.Fatalf("UIPort = %d, want default", cfg.UIPort)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{not json}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(tmpDir); err == nil {
		t.Fatalf("Load() expected error, got nil")
	}
}

func TestLoad_ProviderKeysIgnoredInFile(t *testing.T) {
	clearEnv(t)
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	if err := os.WriteFile(configPath, []byte(`{"GeminiAPIKey": "leaked"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GeminiAPIKey != "" {
		t.Fatalf("GeminiAPIKey = %q, want empty", cfg.GeminiAPIKey)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("GHOSTWRITE_API_ENDPOINT", "http://env:1")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")
	t.Setenv("GHOSTWRITE_SERVE_PORT", "9999")

	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.json"), []byte(`{"api_endpoint": "http://file:1"}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIEndpoint != "http://env:1" {
		t.Errorf("APIEndpoint = %q, want env value", cfg.APIEndpoint)
	}
	if cfg.GeminiAPIKey != "g-key" || cfg.OpenAIAPIKey != "o-key" {
		t.Errorf("provider keys not loaded from env: %q %q", cfg.GeminiAPIKey, cfg.OpenAIAPIKey)
	}
	if cfg.ServePort != 9999 {
		t.Errorf("ServePort = %d, want 9999", cfg.ServePort)
	}
}

func TestLoad_BadEnvInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("GHOSTWRITE_UI_PORT", "not-a-number")

	if _, err := Load(t.TempDir()); err == nil {
		t.Fatal("Load() expected error for malformed int env var")
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{LowCreditThreshold: 10, APIEndpoint: "a"}
	overlay := &Config{LowCreditThreshold: 5}

	result := Merge(base, overlay)
	if result.LowCreditThreshold != 5 {
		t.Errorf("LowCreditThreshold = %d, want 5", result.LowCreditThreshold)
	}
	if result.APIEndpoint != "a" {
		t.Errorf("APIEndpoint = %q, want base value", result.APIEndpoint)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{DisableBuiltinGrammar: true}, &Config{})
	if !result.DisableBuiltinGrammar {
		t.Error("DisableBuiltinGrammar should be true when base is true")
	}
	result = Merge(&Config{}, &Config{SkipServerGrammarCheck: true})
	if !result.SkipServerGrammarCheck {
		t.Error("SkipServerGrammarCheck should be true when overlay is true")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"open_upgrade", " save_api_key "}}
	overlay := &Config{DisabledTools: []string{"save_api_key", "recheck_api"}}

	result := Merge(base, overlay)
	want := []string{"open_upgrade", "save_api_key", "recheck_api"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i := range want {
		if result.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], want[i])
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"local mode without endpoint", func(c *Config) { c.TransformMode = TransformLocal; c.APIEndpoint = "" }, false},
		{"remote mode without endpoint", func(c *Config) { c.APIEndpoint = " " }, true},
		{"unknown mode", func(c *Config) { c.TransformMode = "cloud" }, true},
		{"negative interval", func(c *Config) { c.RecheckIntervalSeconds = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	if got := ResolvePath("/base", "rules.yaml"); got != filepath.Join("/base", "rules.yaml") {
		t.Errorf("ResolvePath relative = %q", got)
	}
	if got := ResolvePath("/base", "/abs/rules.yaml"); got != "/abs/rules.yaml" {
		t.Errorf("ResolvePath absolute = %q", got)
	}
	if got := ResolvePath("/base", ""); got != "" {
		t.Errorf("ResolvePath empty = %q", got)
	}
}
