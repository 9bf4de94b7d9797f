package models

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kris-hansen/metagent/utils/retry"
)

// AIMLAPIProvider handles models served through the AIMLAPI gateway, which
// exposes an OpenAI-compatible chat completion interface.
type AIMLAPIProvider struct {
	apiKey  string
	verbose bool
	mu      sync.Mutex
}

// NewAIMLAPIProvider creates a new AIMLAPI provider instance
func NewAIMLAPIProvider() *AIMLAPIProvider {
	return &AIMLAPIProvider{}
}

// debugf prints debug information if verbose mode is enabled (thread-safe)
func (p *AIMLAPIProvider) debugf(format string, args ...interface{}) {
	if p.verbose {
		p.mu.Lock()
		defer p.mu.Unlock()
		log.Printf("[DEBUG][AIMLAPI] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (p *AIMLAPIProvider) Name() string {
	return ProviderAIMLAPI
}

// SupportsModel checks if the given model name is supported by AIMLAPI.
// The gateway serves many vendor-prefixed models, so family prefixes from
// the registry decide.
func (p *AIMLAPIProvider) SupportsModel(modelName string) bool {
	modelName = strings.ToLower(modelName)
	registry := GetRegistry()
	for _, prefix := range registry.GetFamilies(ProviderAIMLAPI) {
		if strings.HasPrefix(modelName, prefix) {
			return true
		}
	}
	for _, model := range registry.GetModels(ProviderAIMLAPI) {
		if modelName == strings.ToLower(model) {
			return true
		}
	}
	return false
}

// Configure sets up the provider with necessary credentials
func (p *AIMLAPIProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for AIMLAPI provider")
	}
	p.apiKey = apiKey
	p.debugf("API key configured successfully")
	return nil
}

// SetVerbose enables or disables verbose mode
func (p *AIMLAPIProvider) SetVerbose(verbose bool) {
	p.verbose = verbose
}

// Complete sends a system/user prompt pair to the specified model and
// returns the response text.
func (p *AIMLAPIProvider) Complete(ctx context.Context, systemPrompt, userPrompt, modelName string, cfg ModelConfig) (string, error) {
	p.debugf("Preparing to send prompt to model: %s", modelName)
	p.debugf("Prompt length: %d characters", len(systemPrompt)+len(userPrompt))

	if p.apiKey == "" {
		return "", fmt.Errorf("AIMLAPI provider not configured: missing API key")
	}

	if !p.SupportsModel(modelName) {
		return "", fmt.Errorf("invalid AIMLAPI model: %s", modelName)
	}

	clientConfig := openai.DefaultConfig(p.apiKey)
	clientConfig.BaseURL = "https://api.aimlapi.com/v1"
	client := openai.NewClientWithConfig(clientConfig)

	result, err := retry.WithRetry(
		ctx,
		func() (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout)
			defer cancel()

			resp, err := client.CreateChatCompletion(
				attemptCtx,
				openai.ChatCompletionRequest{
					Model: modelName,
					Messages: []openai.ChatCompletionMessage{
						{
							Role:    openai.ChatMessageRoleSystem,
							Content: systemPrompt,
						},
						{
							Role:    openai.ChatMessageRoleUser,
							Content: userPrompt,
						},
					},
					Temperature: float32(cfg.Temperature),
					MaxTokens:   cfg.MaxTokens,
				},
			)

			if err != nil {
				if attemptCtx.Err() == context.DeadlineExceeded {
					return "", fmt.Errorf("request timed out after %v", AttemptTimeout)
				}
				return "", fmt.Errorf("AIMLAPI error: %v", err)
			}

			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("no response choices returned from AIMLAPI")
			}

			return resp.Choices[0].Message.Content, nil
		},
		retry.IsTransient,
		retry.NetworkRetryConfig,
	)

	if err != nil {
		return "", err
	}

	p.debugf("API call completed, response length: %d characters", len(result))
	return result, nil
}
