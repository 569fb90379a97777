// Package assistant answers a trader's questions grounded in their own journal.
//
// A Session is opened per request for one owner. It carries that owner's chat
// provider and embedding index; nothing provider-related is shared between users.
package assistant

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/apikeys"
	models "trading-journal/database/models_pkg"
	"trading-journal/embeddings"
	"trading-journal/insights"
	"trading-journal/llm"
)

// ErrProviderInitialize is returned when no chat provider can be set up for the owner
var ErrProviderInitialize = errors.New("failed to initialize AI provider")

// ErrGenerateResponse is the single error surfaced when the provider fails after retries
var ErrGenerateResponse = errors.New("failed to generate response")

// defaultTurnTimeout bounds one chat turn once it has been detached from the caller
const defaultTurnTimeout = 3 * time.Minute

// CredentialSource resolves which provider and key an owner uses
type CredentialSource interface {
	ActiveCredentials(ctx context.Context, userID string) (*apikeys.Credentials, error)
}

// ProviderFactory builds chat clients and fills request defaults
type ProviderFactory interface {
	Chat(provider, apiKey, model string) (llm.ChatProvider, error)
	Completion(req llm.CompletionRequest) llm.CompletionRequest
}

// IndexerSource opens an owner's embedding index
type IndexerSource interface {
	Initialize(ctx context.Context, userID string) (*embeddings.Indexer, bool)
}

// Searcher retrieves trades and plans similar to a question
type Searcher interface {
	Search(ctx context.Context, q embeddings.SearchQuery) embeddings.SearchResult
}

// HistoryStore persists chat exchanges
type HistoryStore interface {
	Append(ctx context.Context, ex *models.ChatExchange) error
	Recent(ctx context.Context, userID, conversationID string, n int) ([]models.ChatExchange, error)
}

// TradeLister loads an owner's trades, newest first
type TradeLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Trade, error)
}

// SessionFactory opens sessions
type SessionFactory struct {
	creds     CredentialSource
	providers ProviderFactory
	indexers  IndexerSource
	history   HistoryStore
	trades    TradeLister
	insights  *insights.Generator
	retry     llm.RetryPolicy
	logger    zerolog.Logger
}

// NewSessionFactory creates a session factory
func NewSessionFactory(creds CredentialSource, providers ProviderFactory, indexers IndexerSource,
	history HistoryStore, trades TradeLister, gen *insights.Generator, retry llm.RetryPolicy, logger zerolog.Logger) *SessionFactory {
	return &SessionFactory{
		creds:     creds,
		providers: providers,
		indexers:  indexers,
		history:   history,
		trades:    trades,
		insights:  gen,
		retry:     retry,
		logger:    logger.With().Str("component", "assistant").Logger(),
	}
}

// Session is one owner's assistant
type Session struct {
	userID      string
	provider    llm.ChatProvider
	searcher    Searcher
	defaults    ProviderFactory
	history     HistoryStore
	trades      TradeLister
	insights    *insights.Generator
	retry       llm.RetryPolicy
	turnTimeout time.Duration
	logger      zerolog.Logger
}

// Open resolves the owner's provider and embedding index.
// Missing embedding capability is not an error; retrieval simply comes back empty.
func (f *SessionFactory) Open(ctx context.Context, userID string) (*Session, error) {
	log := f.logger.With().Str("user_id", userID).Logger()

	creds, err := f.creds.ActiveCredentials(ctx, userID)
	if err != nil {
		log.Error().Err(err).Msg("No usable AI provider")
		return nil, ErrProviderInitialize
	}
	provider, err := f.providers.Chat(creds.Provider, creds.APIKey, creds.Model)
	if err != nil {
		log.Error().Err(err).Str("provider", creds.Provider).Msg("Failed to build AI provider")
		return nil, ErrProviderInitialize
	}

	indexer, ok := f.indexers.Initialize(ctx, userID)
	if !ok {
		log.Warn().Str("degraded", string(indexer.Degraded())).Msg("Chat will run without retrieval")
	}

	return &Session{
		userID:      userID,
		provider:    provider,
		searcher:    indexer,
		defaults:    f.providers,
		history:     f.history,
		trades:      f.trades,
		insights:    f.insights,
		retry:       f.retry,
		turnTimeout: defaultTurnTimeout,
		logger:      log.With().Str("provider", provider.Name()).Logger(),
	}, nil
}

// UserID returns the session owner
func (s *Session) UserID() string {
	return s.userID
}

// Provider returns the name of the session's chat provider
func (s *Session) Provider() string {
	return s.provider.Name()
}

// GenerateInsights analyses the owner's most recent trades
func (s *Session) GenerateInsights(ctx context.Context, t models.InsightType) (*models.AIInsight, error) {
	trades, err := s.trades.ListByUser(ctx, s.userID, insights.MaxTrades)
	if err != nil {
		return nil, err
	}
	return s.insights.Generate(ctx, s.provider, s.userID, t, trades)
}
