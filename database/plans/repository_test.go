package plans

import (
	"context"
	"regexp"
	"testing"
	"time"

	models "trading-journal/database/models_pkg"

	"github.com/DATA-DOG/go-sqlmock"
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

func samplePlan() *models.TradingPlan {
	return &models.TradingPlan{
		UserID:     "user-1",
		Date:       time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		MarketBias: "bullish",
		Setups: []models.TradeSetup{{
			ID:           "stale-setup",
			Ticker:       "ES",
			Direction:    models.DirectionLong,
			EntryPrice:   5000,
			StopLoss:     4990,
			TakeProfit:   5020,
			PositionSize: 2,
		}},
	}
}

func TestUpsertCreatesNewPlan(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_plans" WHERE user_id = $1 AND date = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trading_plans"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trade_plans"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	plan := samplePlan()
	require.NoError(t, repo.Upsert(context.Background(), plan))

	require.NotEmpty(t, plan.ID)
	s := plan.Setups[0]
	assert.Equal(t, plan.ID, s.TradingPlanID)
	assert.Equal(t, "user-1", s.UserID)
	assert.NotEqual(t, "stale-setup", s.ID)
	assert.Equal(t, 1000.0, s.RiskAmount)
	assert.Equal(t, 2000.0, s.RewardAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertReplacesExistingPlanForDate(t *testing.T) {
	repo, mock := newMockRepo(t)
	created := time.Date(2024, 3, 3, 20, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_plans" WHERE user_id = $1 AND date = $2`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at"}).
			AddRow("plan-1", "user-1", created))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "trading_plans" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "trade_plans" WHERE trading_plan_id = $1`)).
		WithArgs("plan-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trade_plans"`)).
		WithArgs(sqlmock.AnyArg(), "plan-1", "user-1", "ES", "long", 5000.0, 4990.0, 5020.0, 2, 0, 1000.0, 2000.0, "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	plan := samplePlan()
	require.NoError(t, repo.Upsert(context.Background(), plan))

	assert.Equal(t, "plan-1", plan.ID)
	assert.True(t, created.Equal(plan.CreatedAt))
	assert.Equal(t, "plan-1", plan.Setups[0].TradingPlanID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertLookupFailureRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "trading_plans"`)).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), samplePlan())
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}
