package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-journal/analysis"
	"trading-journal/apikeys"
	"trading-journal/assistant"
	"trading-journal/auth"
	"trading-journal/config"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
	"trading-journal/embeddings"
	"trading-journal/llm"
	"trading-journal/realtime"
)

const (
	testSecret = "test-secret"
	ownerID    = "3f1c2b9e-5d4a-4e8b-9c7f-1a2b3c4d5e6f"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeTrades struct {
	created []models.Trade
	deleted []string
}

func (f *fakeTrades) Create(_ context.Context, t *models.Trade) error {
	t.ID = fmt.Sprintf("trade-%d", len(f.created)+1)
	f.created = append(f.created, *t)
	return nil
}

func (f *fakeTrades) Delete(_ context.Context, userID, id string) error {
	if id == "missing" {
		return database.NewNotFoundErrorWithID("trade", id)
	}
	f.deleted = append(f.deleted, userID+"/"+id)
	return nil
}

type fakePlans struct {
	saved []models.TradingPlan
}

func (f *fakePlans) Upsert(_ context.Context, p *models.TradingPlan) error {
	p.ID = "plan-1"
	f.saved = append(f.saved, *p)
	return nil
}

func (f *fakePlans) Delete(context.Context, string, string) error {
	return nil
}

type fakePatterns struct {
	lastType models.PatternType
}

func (f *fakePatterns) ListPatterns(_ context.Context, _ string, pt models.PatternType, _ int) ([]models.TradePattern, error) {
	f.lastType = pt
	return []models.TradePattern{{ID: "p1", PatternType: models.PatternTypeTimeBased}}, nil
}

type fakeEngine struct {
	report    *analysis.Report
	recErr    error
	moveErr   error
	analyzeBy string
}

func (f *fakeEngine) Analyze(_ context.Context, userID string) (*analysis.Report, error) {
	f.analyzeBy = userID
	return f.report, nil
}

func (f *fakeEngine) GenerateRecommendation(_ context.Context, userID, patternID string) (*models.PatternRecommendation, error) {
	if f.recErr != nil {
		return nil, f.recErr
	}
	return &models.PatternRecommendation{ID: "rec-1", UserID: userID, PatternID: patternID}, nil
}

func (f *fakeEngine) TransitionRecommendation(_ context.Context, _, id string, to models.RecommendationStatus) (*models.PatternRecommendation, error) {
	if f.moveErr != nil {
		return nil, f.moveErr
	}
	return &models.PatternRecommendation{ID: id, Status: to}, nil
}

func (f *fakeEngine) Recommendations(context.Context, string, int) ([]models.PatternRecommendation, error) {
	return []models.PatternRecommendation{}, nil
}

type fakeHistory struct{}

func (fakeHistory) Conversation(_ context.Context, userID, conversationID string) ([]models.ChatExchange, error) {
	return []models.ChatExchange{{UserID: userID, ConversationID: conversationID}}, nil
}

func (fakeHistory) DeleteConversation(context.Context, string, string) (int64, error) {
	return 2, nil
}

type fakeInsights struct{}

func (fakeInsights) List(context.Context, string, models.InsightType, int) ([]models.AIInsight, error) {
	return []models.AIInsight{}, nil
}

func (fakeInsights) Delete(context.Context, string, string) error {
	return nil
}

type fakeKeys struct {
	err   error
	saved int
}

func (f *fakeKeys) Save(context.Context, string, string, string, string, bool) error {
	if f.err != nil {
		return f.err
	}
	f.saved++
	return nil
}

type fakeSessions struct {
	err    error
	opened int
}

func (f *fakeSessions) Open(context.Context, string) (*assistant.Session, error) {
	f.opened++
	return nil, f.err
}

type publishedEvent struct {
	userID    string
	eventType string
}

type fakeEvents struct {
	published []publishedEvent
}

func (f *fakeEvents) Publish(_ context.Context, userID, eventType string, _ interface{}) {
	f.published = append(f.published, publishedEvent{userID, eventType})
}

func (f *fakeEvents) ServeWS(http.ResponseWriter, *http.Request, string) error { return nil }

func (f *fakeEvents) ServeSSE(http.ResponseWriter, *http.Request, string) {}

type fakeHealth struct{ err error }

func (f fakeHealth) Ping() error { return f.err }

type noEmbeddingKey struct{}

func (noEmbeddingKey) EmbeddingKey(context.Context, string) (string, error) {
	return "", apikeys.ErrNoProviderConfigured
}

type harness struct {
	trades   *fakeTrades
	plans    *fakePlans
	patterns *fakePatterns
	engine   *fakeEngine
	keys     *fakeKeys
	sessions *fakeSessions
	events   *fakeEvents
	router   *gin.Engine
	token    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		trades:   &fakeTrades{},
		plans:    &fakePlans{},
		patterns: &fakePatterns{},
		engine:   &fakeEngine{report: &analysis.Report{UserID: ownerID, TradesAnalyzed: 12, Patterns: []models.TradePattern{{ID: "p1"}}}},
		keys:     &fakeKeys{},
		sessions: &fakeSessions{err: assistant.ErrProviderInitialize},
		events:   &fakeEvents{},
	}

	verifier := auth.NewVerifier(testSecret)
	token, err := verifier.Issue(ownerID, time.Hour)
	require.NoError(t, err)
	h.token = token

	indexers := embeddings.NewService(nil, nil, nil, noEmbeddingKey{}, nil, nil, config.EmbeddingConfig{}, zerolog.Nop())
	s := NewServer(Deps{
		Trades:   h.trades,
		Plans:    h.plans,
		Patterns: h.patterns,
		Engine:   h.engine,
		History:  fakeHistory{},
		Insights: fakeInsights{},
		Keys:     h.keys,
		Indexers: indexers,
		Sessions: h.sessions,
		Events:   h.events,
		Health:   fakeHealth{},
		Verifier: verifier,
		Logger:   zerolog.Nop(),
	})
	h.router = s.Router()
	return h
}

func (h *harness) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func validTrade() map[string]interface{} {
	return map[string]interface{}{
		"date":       "2024-03-04T00:00:00Z",
		"ticker":     "nq",
		"direction":  "short",
		"size":       2,
		"entry_time": "2024-03-04T09:35:00Z",
		"exit_time":  "2024-03-04T09:50:00Z",
		"pnl":        400,
		"commission": 2.5,
	}
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthReportsDatabaseFailure(t *testing.T) {
	s := NewServer(Deps{
		Health:   fakeHealth{err: errors.New("connection refused")},
		Verifier: auth.NewVerifier(testSecret),
		Logger:   zerolog.Nop(),
	})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutesRequireToken(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/trades", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, h.trades.created)
}

func TestCreateTrade(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/trades", validTrade())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.Len(t, h.trades.created, 1)
	trade := h.trades.created[0]
	assert.Equal(t, ownerID, trade.UserID)
	assert.Equal(t, "NQ", trade.Ticker)
	assert.Equal(t, 395.0, trade.NetPnL)

	var data struct {
		Indexed  bool   `json:"indexed"`
		Degraded string `json:"degraded"`
	}
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.False(t, data.Indexed)
	assert.Equal(t, string(embeddings.DegradedNoProvider), data.Degraded)
}

func TestCreateTradeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"exit before entry", func(m map[string]interface{}) { m["exit_time"] = "2024-03-04T09:00:00Z" }},
		{"exit equals entry", func(m map[string]interface{}) { m["exit_time"] = m["entry_time"] }},
		{"zero size", func(m map[string]interface{}) { m["size"] = 0 }},
		{"bad direction", func(m map[string]interface{}) { m["direction"] = "sideways" }},
		{"missing ticker", func(m map[string]interface{}) { delete(m, "ticker") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			body := validTrade()
			tt.mutate(body)

			w := h.do(http.MethodPost, "/api/trades", body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.True(t, decode(t, w).Error)
			assert.Empty(t, h.trades.created)
		})
	}
}

func TestTradeRequestValidateTimestamps(t *testing.T) {
	at := time.Date(2024, 3, 4, 9, 35, 0, 0, time.UTC)
	later := at.Add(time.Minute)
	req := tradeRequest{Date: at, Ticker: "ES", Direction: models.DirectionLong, Size: 1}

	req.EntryTime, req.ExitTime = &at, &at
	assert.True(t, database.IsValidation(req.validate()))

	req.ExitTime = &later
	assert.NoError(t, req.validate())

	req.ExitTime = nil
	assert.NoError(t, req.validate())
}

func TestDeleteTrade(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodDelete, "/api/trades/t-9", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{ownerID + "/t-9"}, h.trades.deleted)

	w = h.do(http.MethodDelete, "/api/trades/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertPlan(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPut, "/api/plans", map[string]interface{}{
		"date":        "2024-03-04T00:00:00Z",
		"market_bias": "bearish",
		"setups": []map[string]interface{}{
			{"ticker": "es", "direction": "long", "entry_price": 5000, "stop_loss": 4990, "take_profit": 5025, "position_size": 1},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.plans.saved, 1)
	assert.Equal(t, ownerID, h.plans.saved[0].UserID)
	assert.Equal(t, "ES", h.plans.saved[0].Setups[0].Ticker)

	w = h.do(http.MethodPut, "/api/plans", map[string]interface{}{
		"date":   "2024-03-04T00:00:00Z",
		"setups": []map[string]interface{}{{"ticker": "es", "direction": "long", "position_size": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchWithoutEmbeddingsIsEmpty(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodGet, "/api/search?q=morning+shorts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var result embeddings.SearchResult
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &result))
	assert.True(t, result.Empty())
	assert.Equal(t, embeddings.DegradedNoProvider, result.Degraded)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/search", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/search?q=x&from=yesterday", nil).Code)
}

func TestAnalyzePublishesEvent(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/patterns/analyze", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, ownerID, h.engine.analyzeBy)
	assert.Equal(t, []publishedEvent{{ownerID, realtime.EventPatternsAnalyzed}}, h.events.published)
}

func TestListPatternsFilter(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/patterns?type=risk", nil).Code)
	assert.Equal(t, models.PatternTypeRisk, h.patterns.lastType)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/patterns?type=lucky", nil).Code)
}

func TestGenerateRecommendation(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/patterns/p1/recommendations", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []publishedEvent{{ownerID, realtime.EventRecommendationCreated}}, h.events.published)

	h = newHarness(t)
	h.engine.recErr = analysis.ErrNoMatchedTrades
	w = h.do(http.MethodPost, "/api/patterns/p1/recommendations", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, h.events.published)
}

func TestRecommendationTransitions(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/recommendations/rec-1/trigger", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rec models.PatternRecommendation
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &rec))
	assert.Equal(t, models.RecommendationTriggered, rec.Status)

	h.engine.moveErr = fmt.Errorf("TransitionRecommendation: %w", models.ErrInvalidTransition)
	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, "/api/recommendations/rec-1/invalidate", nil).Code)
}

func TestChatWithoutProvider(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/chat", map[string]string{"message": "how are my mornings?"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, msgProviderRequired, decode(t, w).Message)
}

func TestConversationRoutes(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/chat/c-1", nil).Code)

	w := h.do(http.MethodDelete, "/api/chat/c-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"deleted":2}`, string(decode(t, w).Data))
}

func TestInsightTypeValidatedBeforeOpeningSession(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPost, "/api/insights", map[string]string{"type": "astrology"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, h.sessions.opened)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodGet, "/api/insights?type=astrology", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/insights?type=risk", nil).Code)
}

func TestSaveAIKey(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodPut, "/api/settings/ai", map[string]interface{}{"provider": "OpenAI", "api_key": "sk-1", "preferred": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, h.keys.saved)

	h.keys.err = fmt.Errorf("%w: rejected", llm.ErrInvalidAPIKey)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/settings/ai", map[string]string{"provider": "openai", "api_key": "bad"}).Code)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/settings/ai", map[string]string{"provider": "openai"}).Code)
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	h := newHarness(t)
	h.keys.err = errors.New("pq: password authentication failed for user journal")

	w := h.do(http.MethodPut, "/api/settings/ai", map[string]string{"provider": "openai", "api_key": "sk-1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{database.NewValidationError("size", "must be positive"), http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", database.NewNotFoundErrorWithID("pattern", "p")), http.StatusNotFound},
		{assistant.ErrGenerateResponse, http.StatusBadGateway},
		{apikeys.ErrEncryptionDisabled, http.StatusServiceUnavailable},
		{models.ErrUnknownInsightType, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		got, _ := classify(tt.err)
		assert.Equal(t, tt.want, got, tt.err.Error())
	}
}
