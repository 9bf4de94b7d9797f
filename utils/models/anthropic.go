package models

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/kris-hansen/metagent/utils/retry"
)

// AnthropicProvider handles the Claude family of models via the Anthropic
// Messages API.
type AnthropicProvider struct {
	apiKey  string
	verbose bool
	mu      sync.Mutex
}

// NewAnthropicProvider creates a new Anthropic provider instance
func NewAnthropicProvider() *AnthropicProvider {
	return &AnthropicProvider{}
}

// debugf prints debug information if verbose mode is enabled (thread-safe)
func (a *AnthropicProvider) debugf(format string, args ...interface{}) {
	if a.verbose {
		a.mu.Lock()
		defer a.mu.Unlock()
		log.Printf("[DEBUG][Anthropic] "+format+"\n", args...)
	}
}

// Name returns the provider name
func (a *AnthropicProvider) Name() string {
	return ProviderClaude
}

// SupportsModel checks if the given model name is supported by Anthropic
func (a *AnthropicProvider) SupportsModel(modelName string) bool {
	return strings.HasPrefix(strings.ToLower(modelName), "claude-")
}

// Configure sets up the provider with necessary credentials
func (a *AnthropicProvider) Configure(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("API key is required for Anthropic provider")
	}
	a.apiKey = apiKey
	a.debugf("API key configured successfully")
	return nil
}

// SetVerbose enables or disables verbose mode
func (a *AnthropicProvider) SetVerbose(verbose bool) {
	a.verbose = verbose
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends a system/user prompt pair to the specified model and
// returns the response text.
func (a *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt, modelName string, cfg ModelConfig) (string, error) {
	a.debugf("Preparing to send prompt to model: %s", modelName)
	a.debugf("Prompt length: %d characters", len(systemPrompt)+len(userPrompt))

	if a.apiKey == "" {
		return "", fmt.Errorf("Anthropic provider not configured: missing API key")
	}

	if !GetRegistry().ValidateModel(ProviderClaude, modelName) {
		return "", fmt.Errorf("invalid Anthropic model: %s", modelName)
	}

	reqBody := anthropicRequest{
		Model:  modelName,
		System: systemPrompt,
		Messages: []anthropicMessage{
			{
				Role: "user",
				Content: []anthropicContent{
					{Type: "text", Text: userPrompt},
				},
			},
		},
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	result, err := retry.WithRetry(
		ctx,
		func() (string, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, AttemptTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(attemptCtx, "POST", "https://api.anthropic.com/v1/messages", bytes.NewBuffer(jsonData))
			if err != nil {
				return "", fmt.Errorf("failed to create request: %v", err)
			}

			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-api-key", a.apiKey)
			req.Header.Set("anthropic-version", "2023-06-01")

			client := &http.Client{}
			resp, err := client.Do(req)
			if err != nil {
				return "", fmt.Errorf("failed to send request: %v", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read response: %v", err)
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				return "", fmt.Errorf("API request failed with status 429: %s", string(body))
			}

			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
			}

			var response anthropicResponse
			if err := json.Unmarshal(body, &response); err != nil {
				return "", fmt.Errorf("failed to unmarshal response: %v", err)
			}

			if response.Error != nil {
				if strings.Contains(strings.ToLower(response.Error.Message), "rate limit") ||
					strings.Contains(strings.ToLower(response.Error.Message), "quota") {
					return "", fmt.Errorf("API rate limit error: %s", response.Error.Message)
				}
				return "", fmt.Errorf("API error: %s", response.Error.Message)
			}

			if len(response.Content) == 0 {
				return "", fmt.Errorf("no response content returned from Anthropic")
			}

			return response.Content[0].Text, nil
		},
		retry.IsTransient,
		retry.NetworkRetryConfig,
	)

	if err != nil {
		return "", err
	}

	a.debugf("API call completed, response length: %d characters", len(result))
	return result, nil
}
