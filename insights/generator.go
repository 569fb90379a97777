// Package insights produces structured AI analyses of a batch of trades.
package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	models "trading-journal/database/models_pkg"
	"trading-journal/llm"
)

// MaxTrades is the largest batch sent to the provider
const MaxTrades = 50

// placeholderDescription is shown when the provider reply could not be used
const placeholderDescription = "Unable to generate a detailed analysis at this time. Please try again later."

// ErrGenerateInsights is the single error surfaced when the provider fails after retries
var ErrGenerateInsights = errors.New("failed to generate insights")

// requiredKeys must all be present in a provider reply
var requiredKeys = []string{"title", "description", "metrics", "recommendations"}

// Store persists insights
type Store interface {
	Save(ctx context.Context, insight *models.AIInsight) error
}

// RequestDefaults fills in max tokens and temperature
type RequestDefaults interface {
	Completion(req llm.CompletionRequest) llm.CompletionRequest
}

// Generator builds, sends and validates insight requests
type Generator struct {
	store    Store
	defaults RequestDefaults
	retry    llm.RetryPolicy
	logger   zerolog.Logger
}

// NewGenerator creates an insight generator
func NewGenerator(store Store, defaults RequestDefaults, retry llm.RetryPolicy, logger zerolog.Logger) *Generator {
	return &Generator{
		store:    store,
		defaults: defaults,
		retry:    retry,
		logger:   logger.With().Str("component", "insights").Logger(),
	}
}

// Generate analyses at most the 50 most recent trades with provider and stores
// the result. A reply that is not the expected JSON object yields a placeholder
// insight, which is stored like any other.
func (g *Generator) Generate(ctx context.Context, provider llm.ChatProvider, userID string,
	insightType models.InsightType, trades []models.Trade) (*models.AIInsight, error) {

	system, err := llm.InsightSystemPrompt(insightType)
	if err != nil {
		return nil, err
	}

	batch := mostRecent(trades, MaxTrades)
	req := g.defaults.Completion(llm.CompletionRequest{
		System:   system,
		Messages: []llm.Message{{Role: "user", Content: llm.InsightUserPrompt(insightType, batch)}},
	})

	log := g.logger.With().Str("user_id", userID).Str("type", string(insightType)).Logger()
	reply, err := llm.Retry(ctx, g.retry, log, "insights", func(ctx context.Context) (string, error) {
		return provider.Complete(ctx, req)
	})
	if err != nil {
		log.Error().Err(err).Str("provider", provider.Name()).Msg("Insight generation failed")
		return nil, ErrGenerateInsights
	}

	content, err := ParseContent(reply)
	if err != nil {
		log.Warn().Err(err).Msg("Insight reply rejected, storing placeholder")
		content = Placeholder(insightType)
	}
	content.Normalize()

	insight := &models.AIInsight{
		UserID:  userID,
		Type:    insightType,
		Content: datatypes.NewJSONType(content),
	}
	if err := g.store.Save(ctx, insight); err != nil {
		return nil, fmt.Errorf("GenerateInsights: %w", err)
	}

	log.Info().Int("trades", len(batch)).Str("insight_id", insight.ID).Msg("Insight created")
	return insight, nil
}

// ParseContent extracts and validates the insight object of a provider reply
func ParseContent(reply string) (models.InsightContent, error) {
	var content models.InsightContent

	raw, ok := llm.ExtractJSONObject(reply)
	if !ok {
		return content, errors.New("reply contains no JSON object")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return content, fmt.Errorf("decode reply: %w", err)
	}
	for _, k := range requiredKeys {
		v, ok := fields[k]
		if !ok || string(v) == "null" {
			return content, fmt.Errorf("reply is missing %q", k)
		}
	}

	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return content, fmt.Errorf("decode insight: %w", err)
	}
	if content.Title == "" {
		return content, errors.New("reply has an empty title")
	}
	return content, nil
}

// Placeholder is the insight stored when a reply cannot be used
func Placeholder(t models.InsightType) models.InsightContent {
	c := models.InsightContent{
		Title:       fmt.Sprintf("%s Analysis", t.Title()),
		Description: placeholderDescription,
	}
	c.Normalize()
	return c
}

// mostRecent returns up to n trades, newest first
func mostRecent(trades []models.Trade, n int) []models.Trade {
	out := make([]models.Trade, len(trades))
	copy(out, trades)
	sort.SliceStable(out, func(i, j int) bool {
		return recency(out[i]).After(recency(out[j]))
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func recency(t models.Trade) time.Time {
	if t.EntryTime != nil {
		return *t.EntryTime
	}
	return t.Date
}
