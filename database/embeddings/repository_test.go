package embeddings

import (
	"context"
	"regexp"
	"testing"

	models "trading-journal/database/models_pkg"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewRepository(db), mock
}

func TestUpsertTradeUpdatesInPlace(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trade_embeddings"`) + ".+" +
		regexp.QuoteMeta(`ON CONFLICT ("user_id","trade_id") DO UPDATE SET "content"="excluded"."content","embedding"="excluded"."embedding","updated_at"="excluded"."updated_at"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := &models.TradeEmbedding{
		UserID:    "user-1",
		TradeID:   "trade-1",
		Content:   "Ticker: ES",
		Embedding: pgvector.NewVector([]float32{1, 0.5}),
	}
	require.NoError(t, repo.UpsertTrade(context.Background(), e))
	assert.NotEmpty(t, e.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertPlanKeyedByPlan(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "plan_embeddings"`) + ".+" +
		regexp.QuoteMeta(`ON CONFLICT ("user_id","trading_plan_id") DO UPDATE SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	e := &models.PlanEmbedding{
		UserID:        "user-1",
		TradingPlanID: "plan-1",
		Content:       "Bias: bullish",
		Embedding:     pgvector.NewVector([]float32{0.25}),
	}
	require.NoError(t, repo.UpsertPlan(context.Background(), e))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchTradesCallsSearchFunction(t *testing.T) {
	repo, mock := newMockRepo(t)
	query := []float32{1, 0.5}

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT trade_id AS id, similarity FROM search_trade_embeddings($1, $2, $3, $4, $5, $6)`)).
		WithArgs(pgvector.NewVector(query), 0.7, 5, "user-1", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "similarity"}).
			AddRow("trade-2", 0.93).
			AddRow("trade-1", 0.81))

	matches, err := repo.SearchTrades(context.Background(), query, SearchParams{
		UserID:    "user-1",
		Threshold: 0.7,
		Limit:     5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "trade-2", matches[0].ID)
	assert.InDelta(t, 0.93, matches[0].Similarity, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchPlansCallsSearchFunction(t *testing.T) {
	repo, mock := newMockRepo(t)
	query := []float32{0.25}

	mock.ExpectQuery(regexp.QuoteMeta(
		`SELECT trading_plan_id AS id, similarity FROM search_plan_embeddings($1, $2, $3, $4, $5, $6)`)).
		WithArgs(pgvector.NewVector(query), 0.5, 3, "user-1", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "similarity"}).AddRow("plan-1", 0.66))

	matches, err := repo.SearchPlans(context.Background(), query, SearchParams{
		UserID:    "user-1",
		Threshold: 0.5,
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "plan-1", matches[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteByEntityClearsBothTables(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "trade_embeddings" WHERE user_id = $1 AND trade_id = $2`)).
		WithArgs("user-1", "entity-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "plan_embeddings" WHERE user_id = $1 AND trading_plan_id = $2`)).
		WithArgs("user-1", "entity-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	require.NoError(t, repo.DeleteByEntity(context.Background(), "user-1", "entity-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
