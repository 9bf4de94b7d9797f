package models

import (
	"testing"
)

func TestDefaultModel(t *testing.T) {
	cases := map[string]string{
		ProviderClaude:  "claude-haiku-4-5",
		ProviderAIMLAPI: "x-ai/grok-4-fast-reasoning",
		ProviderGemini:  "gemini-2.5-pro",
		"oracle":        "",
	}
	for provider, want := range cases {
		if got := DefaultModel(provider); got != want {
			t.Errorf("DefaultModel(%q) = %q, want %q", provider, got, want)
		}
	}
}

func TestCreateProvider(t *testing.T) {
	for _, name := range []string{ProviderClaude, ProviderAIMLAPI, ProviderGemini} {
		p, err := CreateProvider(name)
		if err != nil {
			t.Fatalf("CreateProvider(%q) failed: %v", name, err)
		}
		if p.Name() != name {
			t.Errorf("provider name mismatch: got %q, want %q", p.Name(), name)
		}
		if !p.SupportsModel(DefaultModel(name)) {
			t.Errorf("provider %q does not support its own default model", name)
		}
	}

	if _, err := CreateProvider("oracle"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestProviders_RequireAPIKey(t *testing.T) {
	for _, name := range []string{ProviderClaude, ProviderAIMLAPI, ProviderGemini} {
		p, err := CreateProvider(name)
		if err != nil {
			t.Fatalf("CreateProvider(%q) failed: %v", name, err)
		}
		if err := p.Configure(""); err == nil {
			t.Errorf("provider %q accepted an empty API key", name)
		}
	}
}

func TestRegistry_ValidateModel(t *testing.T) {
	registry := GetRegistry()

	valid := map[string]string{
		ProviderClaude:  "claude-sonnet-4-5",
		ProviderAIMLAPI: "x-ai/grok-4",
		ProviderGemini:  "gemini-2.5-flash",
	}
	for provider, model := range valid {
		if !registry.ValidateModel(provider, model) {
			t.Errorf("expected %s/%s to validate", provider, model)
		}
	}

	if registry.ValidateModel(ProviderClaude, "gpt-4o") {
		t.Error("claude registry should reject gpt models")
	}
	if registry.ValidateModel(ProviderGemini, "claude-haiku-4-5") {
		t.Error("gemini registry should reject claude models")
	}
}

func TestRegistry_FamilyPrefix(t *testing.T) {
	registry := GetRegistry()
	// Family prefixes admit unlisted dated variants.
	if !registry.ValidateModel(ProviderClaude, "claude-opus-4-5-20251101") {
		t.Error("family prefix should admit dated claude variants")
	}
	if !registry.ValidateModel(ProviderAIMLAPI, "openai/gpt-5.1") {
		t.Error("aimlapi gateway families should admit vendor-prefixed models")
	}
}
