// Package api exposes the journal's analysis core over HTTP.
//
// Every route except /health requires a bearer token; the token subject is the
// owner id passed to every service and repository call.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"trading-journal/analysis"
	"trading-journal/assistant"
	"trading-journal/auth"
	models "trading-journal/database/models_pkg"
	"trading-journal/embeddings"
)

// TradeStore persists trades
type TradeStore interface {
	Create(ctx context.Context, trade *models.Trade) error
	Delete(ctx context.Context, userID, id string) error
}

// PlanStore persists trading plans
type PlanStore interface {
	Upsert(ctx context.Context, plan *models.TradingPlan) error
	Delete(ctx context.Context, userID, id string) error
}

// PatternReader lists stored patterns
type PatternReader interface {
	ListPatterns(ctx context.Context, userID string, patternType models.PatternType, limit int) ([]models.TradePattern, error)
}

// PatternEngine runs analysis and manages recommendations
type PatternEngine interface {
	Analyze(ctx context.Context, userID string) (*analysis.Report, error)
	GenerateRecommendation(ctx context.Context, userID, patternID string) (*models.PatternRecommendation, error)
	TransitionRecommendation(ctx context.Context, userID, id string, to models.RecommendationStatus) (*models.PatternRecommendation, error)
	Recommendations(ctx context.Context, userID string, limit int) ([]models.PatternRecommendation, error)
}

// ChatHistory reads and deletes conversations
type ChatHistory interface {
	Conversation(ctx context.Context, userID, conversationID string) ([]models.ChatExchange, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) (int64, error)
}

// InsightStore lists and deletes insights
type InsightStore interface {
	List(ctx context.Context, userID string, insightType models.InsightType, limit int) ([]models.AIInsight, error)
	Delete(ctx context.Context, userID, id string) error
}

// KeySaver validates and stores provider keys
type KeySaver interface {
	Save(ctx context.Context, userID, provider, apiKey, model string, preferred bool) error
}

// IndexerSource opens a user's embedding index
type IndexerSource interface {
	Initialize(ctx context.Context, userID string) (*embeddings.Indexer, bool)
}

// SessionOpener opens assistant sessions
type SessionOpener interface {
	Open(ctx context.Context, userID string) (*assistant.Session, error)
}

// EventHub delivers realtime events
type EventHub interface {
	Publish(ctx context.Context, userID, eventType string, payload interface{})
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
	ServeSSE(w http.ResponseWriter, r *http.Request, userID string)
}

// HealthChecker reports backing store health
type HealthChecker interface {
	Ping() error
}

// Deps are the collaborators of the server
type Deps struct {
	Trades         TradeStore
	Plans          PlanStore
	Patterns       PatternReader
	Engine         PatternEngine
	History        ChatHistory
	Insights       InsightStore
	Keys           KeySaver
	Indexers       IndexerSource
	Sessions       SessionOpener
	Events         EventHub
	Health         HealthChecker
	Verifier       *auth.Verifier
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server handles HTTP API requests
type Server struct {
	Deps
	logger zerolog.Logger
	srv    *http.Server
}

// NewServer creates a new API server instance
func NewServer(deps Deps) *Server {
	return &Server{
		Deps:   deps,
		logger: deps.Logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.loggingMiddleware())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = s.AllowedOrigins
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", s.handleHealth)

	api := r.Group("/api", auth.Middleware(s.Verifier))
	{
		api.POST("/trades", s.handleCreateTrade)
		api.DELETE("/trades/:id", s.handleDeleteTrade)
		api.PUT("/plans", s.handleUpsertPlan)
		api.DELETE("/plans/:id", s.handleDeletePlan)

		api.POST("/embeddings/backfill", s.handleBackfill)
		api.GET("/search", s.handleSearch)

		api.POST("/patterns/analyze", s.handleAnalyze)
		api.GET("/patterns", s.handleListPatterns)
		api.POST("/patterns/:id/recommendations", s.handleGenerateRecommendation)
		api.GET("/recommendations", s.handleListRecommendations)
		api.POST("/recommendations/:id/trigger", s.handleTransition(models.RecommendationTriggered))
		api.POST("/recommendations/:id/invalidate", s.handleTransition(models.RecommendationInvalidated))

		api.POST("/chat", s.handleChat)
		api.GET("/chat/:conversationId", s.handleGetConversation)
		api.DELETE("/chat/:conversationId", s.handleDeleteConversation)

		api.POST("/insights", s.handleGenerateInsight)
		api.GET("/insights", s.handleListInsights)
		api.DELETE("/insights/:id", s.handleDeleteInsight)

		api.PUT("/settings/ai", s.handleSaveAIKey)

		api.GET("/ws", s.handleWebSocket)
		api.GET("/events", s.handleEvents)
	}
	return r
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.srv.Addr).Msg("API server starting")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.Health != nil {
		if err := s.Health.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if err := s.Events.ServeWS(c.Writer, c.Request, auth.UserID(c)); err != nil {
		s.logger.Warn().Err(err).Msg("Websocket connection failed")
	}
}

func (s *Server) handleEvents(c *gin.Context) {
	s.Events.ServeSSE(c.Writer, c.Request, auth.UserID(c))
}
