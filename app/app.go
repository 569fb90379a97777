package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/analysis"
	"trading-journal/api"
	"trading-journal/apikeys"
	"trading-journal/assistant"
	"trading-journal/auth"
	"trading-journal/cache"
	"trading-journal/config"
	"trading-journal/database"
	"trading-journal/database/chat"
	dbembeddings "trading-journal/database/embeddings"
	dbinsights "trading-journal/database/insights"
	"trading-journal/database/patterns"
	"trading-journal/database/plans"
	"trading-journal/database/settings"
	"trading-journal/database/trades"
	"trading-journal/embeddings"
	"trading-journal/insights"
	"trading-journal/llm"
	"trading-journal/logging"
	"trading-journal/realtime"
)

// ErrMissingJWTSecret is returned by Start when JWT_SECRET is empty
var ErrMissingJWTSecret = errors.New("JWT_SECRET is required")

// App represents the main application
type App struct {
	config    *config.Config
	logger    zerolog.Logger
	db        *database.Database
	redis     *cache.RedisClient
	hub       *realtime.Hub
	scheduler *PatternScheduler
	backfill  *BackfillWorker
}

// New creates a new application instance
func New(cfg *config.Config) *App {
	logger := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.JSONFormat,
	})
	if cfg.EnvFileMissing {
		logger.Info().Msg("No .env file found, using environment")
	}
	return &App{
		config: cfg,
		logger: logger,
	}
}

// Start wires every component and blocks until SIGINT or SIGTERM
func (a *App) Start() error {
	if a.config.API.JWTSecret == "" {
		return ErrMissingJWTSecret
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. Database connection and schema
	a.logger.Info().Str("host", a.config.DatabaseHost).Msg("Connecting to database")
	dbPort, err := strconv.Atoi(a.config.DatabasePort)
	if err != nil {
		return fmt.Errorf("invalid database port: %w", err)
	}
	db, err := database.Connect(database.Config{
		Host:     a.config.DatabaseHost,
		Port:     dbPort,
		User:     a.config.DatabaseUser,
		Password: a.config.DatabasePassword,
		DBName:   a.config.DatabaseName,
		SSLMode:  a.config.DatabaseSSLMode,
	})
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	a.db = db
	if err := db.InitSchema(a.logger); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// 2. Redis is optional; nil disables caching and cross-instance events
	a.redis = cache.NewRedisClient(a.config.RedisHost, a.config.RedisPort, a.config.RedisPassword, a.logger)

	// 3. Repositories
	gormDB := db.DB()
	tradeRepo := trades.NewRepository(gormDB)
	planRepo := plans.NewRepository(gormDB)
	embeddingRepo := dbembeddings.NewRepository(gormDB)
	patternRepo := patterns.NewRepository(gormDB)
	chatRepo := chat.NewRepository(gormDB)
	insightRepo := dbinsights.NewRepository(gormDB)
	settingsRepo := settings.NewRepository(gormDB)

	// 4. AI providers and services
	factory := llm.NewFactory(a.config.LLM)
	keys, err := apikeys.NewService(settingsRepo, factory, a.config.LLM, a.config.EncryptionKey)
	if err != nil {
		return fmt.Errorf("api key service: %w", err)
	}
	if a.config.EncryptionKey == "" {
		a.logger.Warn().Msg("ENCRYPTION_KEY not set, users cannot store provider keys")
	}

	retry := llm.RetryPolicy{
		MaxAttempts: a.config.Retry.MaxAttempts,
		BaseDelay:   a.config.Retry.BaseDelay,
	}
	indexers := embeddings.NewService(embeddingRepo, tradeRepo, planRepo, keys, factory,
		cache.NewEmbeddingCache(a.redis), a.config.Embedding, a.logger)
	engine := analysis.NewEngine(tradeRepo, patternRepo, nil, a.config.Analysis, a.logger)
	generator := insights.NewGenerator(insightRepo, factory, retry, a.logger)
	sessions := assistant.NewSessionFactory(keys, factory, indexers, chatRepo, tradeRepo, generator, retry, a.logger)

	// 5. Realtime hub
	a.hub = realtime.NewHub(a.redis, a.logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.hub.Run(ctx)
	}()

	// 6. Background workers
	a.scheduler = NewPatternScheduler(tradeRepo, engine, a.hub, a.config.Analysis.ScheduleInterval, a.logger)
	a.backfill = NewBackfillWorker(tradeRepo, indexers, a.hub, a.config.Analysis.BackfillInterval, a.logger)
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.scheduler.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		a.backfill.Start(ctx)
	}()

	// 7. API server
	server := api.NewServer(api.Deps{
		Trades:         tradeRepo,
		Plans:          planRepo,
		Patterns:       patternRepo,
		Engine:         engine,
		History:        chatRepo,
		Insights:       insightRepo,
		Keys:           keys,
		Indexers:       indexers,
		Sessions:       sessions,
		Events:         a.hub,
		Health:         db,
		Verifier:       auth.NewVerifier(a.config.API.JWTSecret),
		AllowedOrigins: a.config.API.AllowedOrigins,
		Logger:         a.logger,
	})
	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- server.Start(ctx, a.config.API.Port)
	}()

	// 8. Wait for interrupt or server failure, then shut down
	err = a.waitForShutdown(serverErr)
	cancel()
	wg.Wait()
	a.closeConnections()
	return err
}

// waitForShutdown blocks until a signal arrives or the server exits on its own
func (a *App) waitForShutdown(serverErr <-chan error) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	select {
	case sig := <-interrupt:
		a.logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			a.logger.Error().Err(err).Msg("API server failed")
			return err
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.backfill != nil {
		a.backfill.Stop()
	}
	return nil
}

// closeConnections releases the database and Redis with a bounded wait
func (a *App) closeConnections() {
	done := make(chan struct{})
	go func() {
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Error closing database")
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Error closing redis")
			}
		}
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info().Msg("Graceful shutdown completed")
	case <-time.After(10 * time.Second):
		a.logger.Warn().Msg("Shutdown timeout exceeded, forcing exit")
	}
}
