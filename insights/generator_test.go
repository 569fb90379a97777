package insights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "trading-journal/database/models_pkg"
	"trading-journal/llm"
)

type fakeProvider struct {
	replies []string
	errs    []error
	calls   int
	last    llm.CompletionRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) ValidateAPIKey(context.Context) error { return nil }

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (string, error) {
	i := f.calls
	f.calls++
	f.last = req
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.replies) {
		return f.replies[i], nil
	}
	return f.replies[len(f.replies)-1], nil
}

type memoryStore struct {
	saved []models.AIInsight
	err   error
}

func (m *memoryStore) Save(_ context.Context, insight *models.AIInsight) error {
	if m.err != nil {
		return m.err
	}
	insight.ID = fmt.Sprintf("insight-%d", len(m.saved)+1)
	m.saved = append(m.saved, *insight)
	return nil
}

type passthrough struct{}

func (passthrough) Completion(req llm.CompletionRequest) llm.CompletionRequest { return req }

var fastRetry = llm.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond}

func sampleTrades(n int) []models.Trade {
	base := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	out := make([]models.Trade, n)
	for i := range out {
		entry := base.Add(time.Duration(i) * time.Hour)
		out[i] = models.Trade{
			ID: fmt.Sprintf("t%d", i), UserID: "user-1", Date: entry, Ticker: "ES",
			Direction: models.DirectionLong, Size: 1, EntryTime: &entry, NetPnL: float64(i%3-1) * 50,
		}
	}
	return out
}

const validReply = `Here you go:
{"title":"Solid month","description":"Consistent execution.","metrics":{"strengths":["patience"],"weaknesses":[],"patterns":["morning wins"],"concerns":[],"positives":[],"effective":["stops"]},"recommendations":["size down after two losses"]}`

func TestGenerateParsesReply(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{replies: []string{validReply}}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	insight, err := g.Generate(context.Background(), provider, "user-1", models.InsightPerformance, sampleTrades(3))
	require.NoError(t, err)

	content := insight.Content.Data()
	assert.Equal(t, "Solid month", content.Title)
	assert.Equal(t, []string{"patience"}, content.Metrics.Strengths)
	assert.Equal(t, []string{}, content.Metrics.Concerns)
	assert.Equal(t, []string{"size down after two losses"}, content.Recommendations)
	require.Len(t, store.saved, 1)
	assert.Equal(t, models.InsightPerformance, store.saved[0].Type)
}

func TestGenerateMissingRecommendationsYieldsPlaceholder(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{replies: []string{
		`{"title":"Risk","description":"x","metrics":{"strengths":[],"weaknesses":[],"patterns":[],"concerns":[],"positives":[],"effective":[]}}`,
	}}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	insight, err := g.Generate(context.Background(), provider, "user-1", models.InsightRisk, sampleTrades(2))
	require.NoError(t, err)

	content := insight.Content.Data()
	assert.Equal(t, "Risk Analysis", content.Title)
	assert.Equal(t, placeholderDescription, content.Description)
	assert.NotNil(t, content.Recommendations)
	assert.Empty(t, content.Recommendations)
	require.Len(t, store.saved, 1)

	b, err := json.Marshal(store.saved[0].Content.Data())
	require.NoError(t, err)
	assert.NotContains(t, string(b), "null")
}

func TestGenerateNonJSONYieldsPlaceholder(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{replies: []string{"I could not analyze these trades."}}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	insight, err := g.Generate(context.Background(), provider, "user-1", models.InsightPsychology, nil)
	require.NoError(t, err)
	assert.Equal(t, "Psychology Analysis", insight.Content.Data().Title)
	assert.Len(t, store.saved, 1)
}

func TestGenerateRetriesThenFailsGenerically(t *testing.T) {
	store := &memoryStore{}
	serverErr := &llm.APIError{Provider: "fake", StatusCode: 503, Message: "overloaded"}
	provider := &fakeProvider{errs: []error{serverErr, serverErr, serverErr}, replies: []string{validReply}}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	insight, err := g.Generate(context.Background(), provider, "user-1", models.InsightPattern, sampleTrades(1))
	assert.Nil(t, insight)
	assert.True(t, errors.Is(err, ErrGenerateInsights))
	assert.Equal(t, 3, provider.calls)
	assert.Empty(t, store.saved)
}

func TestGenerateRecoversAfterTransientFailure(t *testing.T) {
	store := &memoryStore{}
	provider := &fakeProvider{
		errs:    []error{&llm.APIError{Provider: "fake", StatusCode: 429, Code: "rate_limit_exceeded"}},
		replies: []string{"", validReply},
	}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	insight, err := g.Generate(context.Background(), provider, "user-1", models.InsightPattern, sampleTrades(1))
	require.NoError(t, err)
	assert.Equal(t, "Solid month", insight.Content.Data().Title)
	assert.Equal(t, 2, provider.calls)
}

func TestGenerateCapsBatch(t *testing.T) {
	provider := &fakeProvider{replies: []string{validReply}}
	g := NewGenerator(&memoryStore{}, passthrough{}, fastRetry, zerolog.Nop())

	_, err := g.Generate(context.Background(), provider, "user-1", models.InsightPerformance, sampleTrades(80))
	require.NoError(t, err)
	require.Len(t, provider.last.Messages, 1)
	assert.Contains(t, provider.last.Messages[0].Content, "these 50 trades")
	// the 50 newest trades start on May 2
	assert.NotContains(t, provider.last.Messages[0].Content, "2024-05-01")
	assert.NotEmpty(t, provider.last.System)
}

func TestGenerateUnknownType(t *testing.T) {
	provider := &fakeProvider{replies: []string{validReply}}
	store := &memoryStore{}
	g := NewGenerator(store, passthrough{}, fastRetry, zerolog.Nop())

	_, err := g.Generate(context.Background(), provider, "user-1", models.InsightType("sentiment"), nil)
	assert.ErrorIs(t, err, models.ErrUnknownInsightType)
	assert.Zero(t, provider.calls)
	assert.Empty(t, store.saved)
}

func TestGeneratePropagatesStoreFailure(t *testing.T) {
	dbErr := errors.New("insert failed")
	g := NewGenerator(&memoryStore{err: dbErr}, passthrough{}, fastRetry, zerolog.Nop())

	_, err := g.Generate(context.Background(), &fakeProvider{replies: []string{validReply}}, "user-1", models.InsightRisk, nil)
	assert.ErrorIs(t, err, dbErr)
}

func TestParseContent(t *testing.T) {
	_, err := ParseContent("```json\n" + `{"title":"t","description":"d","metrics":{},"recommendations":[]}` + "\n```")
	assert.NoError(t, err)

	_, err = ParseContent(`{"title":"t","description":"d","metrics":null,"recommendations":[]}`)
	assert.Error(t, err)

	_, err = ParseContent(`{"title":"t","description":"d","metrics":"none","recommendations":[]}`)
	assert.Error(t, err)
}
