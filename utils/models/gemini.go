package models

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kris-hansen/metagent/utils/retry"
)

// GeminiProvider handles the Google Gemini family of models.
type GeminiProvider struct {
	apiKey  string
	verbose bool
	mu      sync.Mutex
}

// NewGeminiProvider creates a new Gemini provider instance
func NewGeminiProvider() *GeminiProvider {
	return &GeminiProvider{}
}

// debugf prints debug information if verbose mode is enabled (thread-safe)
func (g *GeminiProvider) debugf(format string, args ...interface{}) {
	if g.verbose {
		g.mu.Lock()
		defer g.mu.Unlock()
		log.Printf("[DEBUG][Gemini] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (g *GeminiProvider) Name() string {
	return ProviderGemini
}

// SupportsModel checks if the given model name is supported by Gemini
func (g *GeminiProvider) SupportsModel(modelName string) bool {
	return strings.HasPrefix(strings.ToLower(modelName), "gemini-")
}

// Configure sets up the provider with necessary credentials
func (g *GeminiProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for Gemini provider")
	}
	g.apiKey = apiKey
	g.debugf("API key configured successfully")
	return nil
}

// SetVerbose enables or disables verbose mode
func (g *GeminiProvider) SetVerbose(verbose bool) {
	g.verbose = verbose
}

// Complete sends a system/user prompt pair to the specified model and
// returns the response text.
func (g *GeminiProvider) Complete(ctx context.Context, systemPrompt, userPrompt, modelName string, cfg ModelConfig) (string, error) {
	g.debugf("Preparing to send prompt to model: %s", modelName)

	if g.apiKey == "" {
		return "", fmt.Errorf("Gemini provider not configured: missing API key")
	}

	if !GetRegistry().ValidateModel(ProviderGemini, modelName) {
		return "", fmt.Errorf("invalid Gemini model: %s", modelName)
	}

	result, err := retry.WithRetry(
		ctx,
		func() (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout)
			defer cancel()

			client, err := genai.NewClient(attemptCtx, option.WithAPIKey(g.apiKey))
			if err != nil {
				return "", fmt.Errorf("failed to create Gemini client: %v", err)
			}
			defer client.Close()

			model := client.GenerativeModel(modelName)
			model.SetTemperature(float32(cfg.Temperature))
			model.SetMaxOutputTokens(int32(cfg.MaxTokens))
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(systemPrompt)},
			}

			resp, err := model.GenerateContent(attemptCtx, genai.Text(userPrompt))
			if err != nil {
				if attemptCtx.Err() == context.DeadlineExceeded {
					return "", fmt.Errorf("request timed out after %v", AttemptTimeout)
				}
				return "", fmt.Errorf("Gemini API error: %v", err)
			}

			if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				return "", fmt.Errorf("no response content returned from Gemini")
			}

			var sb strings.Builder
			for _, part := range resp.Candidates[0].Content.Parts {
				if text, ok := part.(genai.Text); ok {
					sb.WriteString(string(text))
				}
			}
			if sb.Len() == 0 {
				return "", fmt.Errorf("Gemini returned empty response")
			}

			return sb.String(), nil
		},
		retry.IsTransient,
		retry.NetworkRetryConfig,
	)

	if err != nil {
		return "", err
	}

	g.debugf("API call completed, response length: %d characters", len(result))
	return result, nil
}
