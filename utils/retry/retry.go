package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kris-hansen/metagent/utils/config"
)

// Config holds configuration for retry operations
type Config struct {
	MaxRetries  int           // Maximum number of retry attempts
	InitialWait time.Duration // Initial wait time before first retry
	MaxWait     time.Duration // Maximum wait time between retries
	Factor      float64       // Exponential backoff factor
}

// NetworkRetryConfig is used for transport-level LLM failures. These retries
// are internal to a single reasoning attempt and independent of the pipeline
// retry counter.
var NetworkRetryConfig = Config{
	MaxRetries:  2,
	InitialWait: 1 * time.Second,
	MaxWait:     30 * time.Second,
	Factor:      2.0,
}

// WithRetry executes the given function with retry logic. It retries when the
// returned error matches shouldRetry, waiting with exponential backoff, and
// stops early when the context is cancelled.
func WithRetry(ctx context.Context, operation func() (string, error), shouldRetry func(error) bool, cfg Config) (string, error) {
	var result string
	var err error
	var wait = cfg.InitialWait

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err = operation()

		if err == nil || !shouldRetry(err) {
			return result, err
		}

		if attempt == cfg.MaxRetries {
			return "", fmt.Errorf("operation failed after %d retries: %w", cfg.MaxRetries, err)
		}

		retryWait := time.Duration(math.Min(float64(wait), float64(cfg.MaxWait)))

		config.DebugLog("[Retry] Retryable error: %v. Retrying in %v (attempt %d/%d)",
			err, retryWait, attempt+1, cfg.MaxRetries)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(retryWait):
		}

		wait = time.Duration(float64(wait) * cfg.Factor)
	}

	return "", fmt.Errorf("unexpected error in retry logic")
}

// IsTransient checks whether the error looks like a rate limit or transient
// transport failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "429") ||
		strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "quota exceeded") ||
		strings.Contains(errMsg, "too many requests") ||
		strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "connection reset") ||
		strings.Contains(errMsg, "status 500") ||
		strings.Contains(errMsg, "status 502") ||
		strings.Contains(errMsg, "status 503")
}
