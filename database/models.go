// Package database provides persistence for the trading journal's analysis core.
//
// This package includes:
//   - Database connection management using GORM and PostgreSQL
//   - Schema setup including the pgvector extension and similarity search functions
//   - Typed errors shared by every repository
//
// Data Models:
//
//	All data models (Trade, TradingPlan, TradePattern, ...) are defined in the models_pkg
//	package so repositories in sub-packages can import them without cycles.
//
// Owner Scoping:
//
//	Every repository method takes the owning user id and filters on it. Row level
//	security in the database is expected to enforce the same rule.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	models "trading-journal/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
type Database struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DB returns the underlying GORM database instance for direct access when needed.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Connect establishes database connection using GORM
func Connect(cfg Config) (*Database, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.DBName, cfg.User, cfg.Password, sslMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true, // surface gorm.ErrDuplicatedKey for unique violations
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)
	sqlDB.SetConnMaxLifetime(ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(ConnMaxIdleTime)

	return &Database{db: db}, nil
}

// Wrap adopts an existing gorm connection (tests, alternate dialers)
func Wrap(db *gorm.DB) *Database {
	return &Database{db: db}
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// Core data models - aliases so callers can import only this package
type Trade = models.Trade
type TradingPlan = models.TradingPlan
type TradeSetup = models.TradeSetup
type TradeEmbedding = models.TradeEmbedding
type PlanEmbedding = models.PlanEmbedding
type TradePattern = models.TradePattern
type PatternMatch = models.PatternMatch
type PatternRecommendation = models.PatternRecommendation
type AIInsight = models.AIInsight
type ChatExchange = models.ChatExchange
type AIProviderKey = models.AIProviderKey
