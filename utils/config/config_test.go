package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnvPath_RespectsOverride(t *testing.T) {
	t.Setenv("METAGENT_ENV", "/tmp/custom-config.yaml")
	if got := GetEnvPath(); got != "/tmp/custom-config.yaml" {
		t.Errorf("expected override path, got %q", got)
	}
}

func TestLoadEnvConfig_MissingFileIsEmpty(t *testing.T) {
	envConfig, err := LoadEnvConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if len(envConfig.Providers) != 0 {
		t.Errorf("expected empty providers, got %v", envConfig.Providers)
	}
}

func TestEnvConfig_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	envConfig := &EnvConfig{}
	envConfig.SetProvider("claude", &ProviderConfig{
		APIKey:       "sk-test-123",
		DefaultModel: "claude-haiku-4-5",
	})
	if err := envConfig.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file with keys should be 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadEnvConfig(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.GetProviderDefaultModel("claude") != "claude-haiku-4-5" {
		t.Errorf("default model not round-tripped: %v", loaded.Providers["claude"])
	}
}

func TestGetProviderAPIKey_EnvWins(t *testing.T) {
	envConfig := &EnvConfig{}
	envConfig.SetProvider("gemini", &ProviderConfig{APIKey: "file-key"})

	t.Setenv("GEMINI_API_KEY", "env-key")
	if got := envConfig.GetProviderAPIKey("gemini"); got != "env-key" {
		t.Errorf("environment variable should win, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "")
	if got := envConfig.GetProviderAPIKey("gemini"); got != "file-key" {
		t.Errorf("config file should be the fallback, got %q", got)
	}
}

func TestProviderEnvVar(t *testing.T) {
	cases := map[string]string{
		"claude":  "ANTHROPIC_API_KEY",
		"aimlapi": "AIMLAPI_KEY",
		"gemini":  "GEMINI_API_KEY",
	}
	for provider, want := range cases {
		if got := ProviderEnvVar(provider); got != want {
			t.Errorf("ProviderEnvVar(%q) = %q, want %q", provider, got, want)
		}
	}
	if ProviderEnvVar("oracle") != "" {
		t.Error("unknown provider should return empty env var")
	}
}
