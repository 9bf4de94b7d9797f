package models

import (
	"strings"
	"sync"
)

// ModelRegistry is a centralized registry of supported models per provider.
type ModelRegistry struct {
	// Map of provider name to list of supported models
	models map[string][]string
	// Map of provider name to list of model families (prefixes)
	families map[string][]string
	mu       sync.RWMutex
}

// Global instance of the model registry
var globalRegistry = NewModelRegistry()

// GetRegistry returns the process-wide model registry.
func GetRegistry() *ModelRegistry {
	return globalRegistry
}

// NewModelRegistry creates a registry populated with the default models.
func NewModelRegistry() *ModelRegistry {
	registry := &ModelRegistry{
		models:   make(map[string][]string),
		families: make(map[string][]string),
	}
	registry.initializeDefaultModels()
	return registry
}

func (r *ModelRegistry) initializeDefaultModels() {
	r.RegisterModels(ProviderClaude, []string{
		"claude-haiku-4-5",
		"claude-haiku-4-5-20251001",
		"claude-sonnet-4-5",
		"claude-sonnet-4-5-20250929",
		"claude-opus-4-5",
		"claude-opus-4-5-20251101",
	})
	r.RegisterFamilies(ProviderClaude, []string{
		"claude-",
	})

	r.RegisterModels(ProviderAIMLAPI, []string{
		"x-ai/grok-4-fast-reasoning",
		"x-ai/grok-4",
	})
	r.RegisterFamilies(ProviderAIMLAPI, []string{
		"x-ai/",
		"openai/",
		"google/",
		"meta-llama/",
	})

	r.RegisterModels(ProviderGemini, []string{
		"gemini-2.5-pro",
		"gemini-2.5-flash",
		"gemini-2.0-flash-lite",
	})
	r.RegisterFamilies(ProviderGemini, []string{
		"gemini-",
	})
}

// RegisterModels adds exact model names for a provider.
func (r *ModelRegistry) RegisterModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[provider] = append(r.models[provider], models...)
}

// RegisterFamilies adds model name prefixes for a provider.
func (r *ModelRegistry) RegisterFamilies(provider string, families []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[provider] = append(r.families[provider], families...)
}

// GetModels returns the exact model names registered for a provider.
func (r *ModelRegistry) GetModels(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.models[provider]...)
}

// GetFamilies returns the model prefixes registered for a provider.
func (r *ModelRegistry) GetFamilies(provider string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.families[provider]...)
}

// ValidateModel checks whether a model name is supported by a provider,
// by exact match or family prefix.
func (r *ModelRegistry) ValidateModel(provider, modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modelName = strings.ToLower(modelName)
	for _, model := range r.models[provider] {
		if modelName == strings.ToLower(model) {
			return true
		}
	}
	for _, prefix := range r.families[provider] {
		if strings.HasPrefix(modelName, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}
