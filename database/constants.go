package database

import "time"

// Connection pool settings
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 10
	ConnMaxLifetime = 5 * time.Minute
	ConnMaxIdleTime = 2 * time.Minute
)

// Query limits
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Recommendation evidence
const (
	// Most recent matched trades considered when generating a recommendation
	RecommendationEvidenceLimit = 10
)

// Chat history
const (
	// Attempts to claim the next message_order before giving up
	MessageOrderRetries = 3
)

// NormalizeLimit clamps a caller supplied limit into [1, MaxLimit]
func NormalizeLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
