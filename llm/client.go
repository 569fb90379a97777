// Package llm talks to language-model providers.
//
// Two chat providers are supported (OpenAI-compatible and Anthropic); embeddings
// always come from the OpenAI-compatible endpoint. Provider failures are returned
// as *APIError so Retry can tell rate limits and server errors from permanent ones.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider names as stored in user settings
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ErrInvalidAPIKey is returned by ValidateAPIKey when the provider rejects the key
var ErrInvalidAPIKey = errors.New("invalid API key")

// ErrUnknownProvider is returned for provider names outside the supported set
var ErrUnknownProvider = errors.New("unknown AI provider")

// Message represents a chat message
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral chat completion request
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// ChatProvider is a chat completion backend
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	ValidateAPIKey(ctx context.Context) error
}

// Embedder turns text into a vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// APIError is a non-2xx provider response
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration // zero when the provider sent no hint
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited reports whether err is a provider rate-limit response
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusTooManyRequests ||
		apiErr.Code == "rate_limit_exceeded" ||
		apiErr.Code == "rate_limit_error"
}

// IsRetryable reports whether a failed call is worth repeating.
// Transport errors are retryable; context cancellation and 4xx responses other
// than 408/429 are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrInvalidAPIKey) {
		return false
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	if IsRateLimited(err) {
		return true
	}
	switch {
	case apiErr.StatusCode == http.StatusRequestTimeout:
		return true
	case apiErr.StatusCode >= 500:
		return true
	}
	return false
}

// parseRetryAfter reads a Retry-After header (delta seconds or HTTP date)
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// newHTTPClient returns a pooled client shared by one provider instance
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// truncate shortens provider error bodies before they reach logs
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
