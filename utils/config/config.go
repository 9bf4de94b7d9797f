package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Verbose controls informational logging
var Verbose bool

// Debug controls detailed debug logging
var Debug bool

// VerboseLog logs a message when verbose mode is enabled
func VerboseLog(format string, args ...interface{}) {
	if Verbose {
		log.Printf("[INFO] "+format+"\n", args...)
	}
}

// DebugLog logs a message when debug mode is enabled
func DebugLog(format string, args ...interface{}) {
	if Debug {
		log.Printf("[DEBUG] "+format+"\n", args...)
	}
}

// ProviderConfig holds per-provider settings from the config file
type ProviderConfig struct {
	APIKey       string `yaml:"api_key,omitempty"`
	DefaultModel string `yaml:"default_model,omitempty"`
}

// EnvConfig represents the environment configuration file (~/.metagent/config.yaml)
type EnvConfig struct {
	Providers     map[string]*ProviderConfig `yaml:"providers"`
	CheckpointDir string                     `yaml:"checkpoint_dir,omitempty"`
	PromptVersion string                     `yaml:"prompt_version,omitempty"`
}

// providerEnvVars maps provider names to the environment variable holding their API key.
// Environment variables always take precedence over the config file.
var providerEnvVars = map[string]string{
	"claude":  "ANTHROPIC_API_KEY",
	"aimlapi": "AIMLAPI_KEY",
	"gemini":  "GEMINI_API_KEY",
}

// GetEnvPath returns the path to the environment configuration file.
// Respects the METAGENT_ENV environment variable if set.
func GetEnvPath() string {
	if envPath := os.Getenv("METAGENT_ENV"); envPath != "" {
		return envPath
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".metagent.yaml"
	}
	return filepath.Join(homeDir, ".metagent", "config.yaml")
}

// LoadEnvConfig loads the environment configuration from the given path.
// A missing file is not an error; it yields an empty configuration so that
// environment variables alone can drive the tool.
func LoadEnvConfig(path string) (*EnvConfig, error) {
	envConfig := &EnvConfig{Providers: make(map[string]*ProviderConfig)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			DebugLog("No config file at %s, using environment variables only", path)
			return envConfig, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, envConfig); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if envConfig.Providers == nil {
		envConfig.Providers = make(map[string]*ProviderConfig)
	}

	DebugLog("Loaded config from %s (%d provider entries)", path, len(envConfig.Providers))
	return envConfig, nil
}

// Save writes the environment configuration to the given path,
// creating parent directories as needed.
func (e *EnvConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Config may contain API keys; keep it private to the user.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetProviderAPIKey resolves the API key for a provider: environment variable
// first, then the config file entry.
func (e *EnvConfig) GetProviderAPIKey(provider string) string {
	if envVar, ok := providerEnvVars[provider]; ok {
		if key := os.Getenv(envVar); key != "" {
			return key
		}
	}
	if pc, ok := e.Providers[provider]; ok {
		return pc.APIKey
	}
	return ""
}

// GetProviderDefaultModel returns the configured default model for a provider,
// or empty if not set.
func (e *EnvConfig) GetProviderDefaultModel(provider string) string {
	if pc, ok := e.Providers[provider]; ok {
		return pc.DefaultModel
	}
	return ""
}

// SetProvider stores or updates a provider entry.
func (e *EnvConfig) SetProvider(name string, pc *ProviderConfig) {
	if e.Providers == nil {
		e.Providers = make(map[string]*ProviderConfig)
	}
	e.Providers[name] = pc
}

// ProviderEnvVar returns the environment variable name for a provider's API
// key, or empty for unknown providers.
func ProviderEnvVar(provider string) string {
	return providerEnvVars[provider]
}

// GetCheckpointDir returns the directory for file-backed checkpoints.
func (e *EnvConfig) GetCheckpointDir() string {
	if e.CheckpointDir != "" {
		return e.CheckpointDir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".metagent-checkpoints"
	}
	return filepath.Join(homeDir, ".metagent", "checkpoints")
}
