package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"API_PORT", "LLM_RETRY_ATTEMPTS", "LLM_RETRY_BASE_DELAY", "EMBEDDING_BATCH_SIZE",
		"EMBEDDING_SEARCH_THRESHOLD", "ANALYSIS_MIN_TIME_SAMPLES", "ANALYSIS_MIN_TICKER_SAMPLES",
		"ANALYSIS_MIN_RISK_SAMPLES", "ANALYSIS_MIN_SUCCESS_RATE", "ANALYSIS_RECOMMENDATION_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg := LoadFromEnv()
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 5, cfg.Embedding.BatchSize)
	assert.Equal(t, 0.5, cfg.Embedding.SearchThreshold)
	assert.Equal(t, 5, cfg.Analysis.MinTimeSamples)
	assert.Equal(t, 10, cfg.Analysis.MinSetupTickerSamples)
	assert.Equal(t, 2, cfg.Analysis.MinRiskSamples)
	assert.Equal(t, 0.6, cfg.Analysis.MinSuccessRate)
	assert.Equal(t, 24*time.Hour, cfg.Analysis.RecommendationWindow)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("LLM_RETRY_BASE_DELAY", "250ms")
	t.Setenv("ANALYSIS_MIN_SUCCESS_RATE", "0.75")
	t.Setenv("API_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadFromEnv()
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 0.75, cfg.Analysis.MinSuccessRate)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("EMBEDDING_BATCH_SIZE", "many")
	t.Setenv("EMBEDDING_BATCH_PAUSE", "soon")
	t.Setenv("LLM_TEMPERATURE", "warm")

	assert.Equal(t, 5, getEnvInt("EMBEDDING_BATCH_SIZE", 5))
	assert.Equal(t, time.Second, getEnvDuration("EMBEDDING_BATCH_PAUSE", time.Second))
	assert.Equal(t, 0.7, getEnvFloat("LLM_TEMPERATURE", 0.7))
}
