package database

import (
	"fmt"

	"github.com/rs/zerolog"

	models "trading-journal/database/models_pkg"
)

// similarityFunctions are the RPCs the embedding indexer calls.
// Both accept an optional [from_date, to_date] window on the source record's date.
var similarityFunctions = []string{
	`CREATE OR REPLACE FUNCTION search_trade_embeddings(
		query_embedding vector(1536),
		match_threshold float,
		match_count int,
		p_user_id uuid,
		from_date date DEFAULT NULL,
		to_date date DEFAULT NULL
	)
	RETURNS TABLE (trade_id uuid, similarity float)
	LANGUAGE sql STABLE AS $$
		SELECT te.trade_id, 1 - (te.embedding <=> query_embedding) AS similarity
		FROM trade_embeddings te
		JOIN trades t ON t.id = te.trade_id
		WHERE te.user_id = p_user_id
		  AND (from_date IS NULL OR t.date >= from_date)
		  AND (to_date IS NULL OR t.date <= to_date)
		  AND 1 - (te.embedding <=> query_embedding) > match_threshold
		ORDER BY te.embedding <=> query_embedding
		LIMIT match_count
	$$`,
	`CREATE OR REPLACE FUNCTION search_plan_embeddings(
		query_embedding vector(1536),
		match_threshold float,
		match_count int,
		p_user_id uuid,
		from_date date DEFAULT NULL,
		to_date date DEFAULT NULL
	)
	RETURNS TABLE (trading_plan_id uuid, similarity float)
	LANGUAGE sql STABLE AS $$
		SELECT pe.trading_plan_id, 1 - (pe.embedding <=> query_embedding) AS similarity
		FROM plan_embeddings pe
		JOIN trading_plans p ON p.id = pe.trading_plan_id
		WHERE pe.user_id = p_user_id
		  AND (from_date IS NULL OR p.date >= from_date)
		  AND (to_date IS NULL OR p.date <= to_date)
		  AND 1 - (pe.embedding <=> query_embedding) > match_threshold
		ORDER BY pe.embedding <=> query_embedding
		LIMIT match_count
	$$`,
}

// InitSchema performs auto-migration and creates the vector search functions
func (d *Database) InitSchema(log zerolog.Logger) error {
	log.Info().Msg("starting database schema initialization")

	if err := d.db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	err := d.db.AutoMigrate(
		&models.Trade{},
		&models.TradingPlan{},
		&models.TradeSetup{},
		&models.TradeEmbedding{},
		&models.PlanEmbedding{},
		&models.TradePattern{},
		&models.PatternMatch{},
		&models.PatternRecommendation{},
		&models.AIInsight{},
		&models.ChatExchange{},
		&models.AIProviderKey{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	// Approximate nearest neighbour indexes; failure only costs search speed
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_trade_embeddings_hnsw ON trade_embeddings USING hnsw (embedding vector_cosine_ops)`,
		`CREATE INDEX IF NOT EXISTS idx_plan_embeddings_hnsw ON plan_embeddings USING hnsw (embedding vector_cosine_ops)`,
	} {
		if err := d.db.Exec(stmt).Error; err != nil {
			log.Warn().Err(err).Msg("failed to create vector index")
		}
	}

	for _, fn := range similarityFunctions {
		if err := d.db.Exec(fn).Error; err != nil {
			return fmt.Errorf("failed to create similarity function: %w", err)
		}
	}

	log.Info().Msg("database schema initialization completed")
	return nil
}
