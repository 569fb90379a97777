package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EmbeddingDimensions is the vector width of the embedding model
const EmbeddingDimensions = 1536

// EmbeddingKind identifies the source entity of an embedding
type EmbeddingKind string

const (
	EmbeddingKindTrade EmbeddingKind = "trade"
	EmbeddingKindPlan  EmbeddingKind = "plan"
)

// TradeEmbedding is the semantic index row of one trade.
// (user_id, trade_id) is unique: re-indexing updates the row in place.
type TradeEmbedding struct {
	ID        string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string          `gorm:"type:uuid;not null;uniqueIndex:idx_trade_embedding_owner,priority:1" json:"user_id"`
	TradeID   string          `gorm:"type:uuid;not null;uniqueIndex:idx_trade_embedding_owner,priority:2" json:"trade_id"`
	Content   string          `gorm:"type:text;not null" json:"content"`
	Embedding pgvector.Vector `gorm:"type:vector(1536);not null" json:"-"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TradeEmbedding
func (TradeEmbedding) TableName() string {
	return "trade_embeddings"
}

// BeforeCreate assigns a UUID when the caller did not
func (e *TradeEmbedding) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// PlanEmbedding is the semantic index row of one trading plan
type PlanEmbedding struct {
	ID            string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string          `gorm:"type:uuid;not null;uniqueIndex:idx_plan_embedding_owner,priority:1" json:"user_id"`
	TradingPlanID string          `gorm:"type:uuid;not null;uniqueIndex:idx_plan_embedding_owner,priority:2" json:"trading_plan_id"`
	Content       string          `gorm:"type:text;not null" json:"content"`
	Embedding     pgvector.Vector `gorm:"type:vector(1536);not null" json:"-"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for PlanEmbedding
func (PlanEmbedding) TableName() string {
	return "plan_embeddings"
}

// BeforeCreate assigns a UUID when the caller did not
func (e *PlanEmbedding) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}

// PatternType is the analysis pass that produced a pattern
type PatternType string

const (
	PatternTypeTimeBased PatternType = "time_based"
	PatternTypeSetup     PatternType = "setup"
	PatternTypeRisk      PatternType = "risk"
)

// TradePattern is a statistically supported behaviour found in a user's history.
// Patterns are produced only by the analysis engine and are keyed by
// (user, pattern type, sub type, bucket) so a rerun refreshes rather than duplicates.
//
// Key Fields:
//   - SubType: hour_09, breakout, position_size, ...
//   - BucketKey: the grouping the pattern was computed over (hour:9, ticker:ES, all)
//   - PatternData: pass-specific JSON payload
//   - ConfidenceScore: min(SampleSize/20, 1)
//   - RiskScore: 0-100, risk patterns only
type TradePattern struct {
	ID              string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string         `gorm:"type:uuid;not null;uniqueIndex:idx_pattern_key,priority:1" json:"user_id"`
	PatternType     PatternType    `gorm:"type:text;not null;uniqueIndex:idx_pattern_key,priority:2" json:"pattern_type"`
	SubType         string         `gorm:"type:text;not null;uniqueIndex:idx_pattern_key,priority:3" json:"sub_type"`
	BucketKey       string         `gorm:"type:text;not null;uniqueIndex:idx_pattern_key,priority:4" json:"bucket_key"`
	PatternData     datatypes.JSON `gorm:"type:jsonb" json:"pattern_data"`
	ConfidenceScore float64        `gorm:"type:decimal(5,4);not null" json:"confidence_score"`
	SuccessRate     float64        `gorm:"type:decimal(5,4);not null" json:"success_rate"`
	SampleSize      int            `gorm:"not null" json:"sample_size"`
	RiskScore       *float64       `gorm:"type:decimal(6,2)" json:"risk_score,omitempty"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	// Trades that support the pattern; persisted as PatternMatch rows
	Matches []PatternMatch `gorm:"-" json:"-"`
}

// TableName specifies the table name for TradePattern
func (TradePattern) TableName() string {
	return "trade_patterns"
}

// BeforeCreate assigns a UUID when the caller did not
func (p *TradePattern) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// PatternMatch links a pattern to a trade that supports it
type PatternMatch struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string    `gorm:"type:uuid;index;not null" json:"user_id"`
	PatternID  string    `gorm:"type:uuid;index;not null" json:"pattern_id"`
	TradeID    string    `gorm:"type:uuid;index;not null" json:"trade_id"`
	MatchScore float64   `gorm:"type:decimal(5,4);not null" json:"match_score"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for PatternMatch
func (PatternMatch) TableName() string {
	return "pattern_matches"
}

// BeforeCreate assigns a UUID when the caller did not
func (m *PatternMatch) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// RecommendationStatus is the lifecycle state of a recommendation
type RecommendationStatus string

const (
	RecommendationPending     RecommendationStatus = "pending"
	RecommendationTriggered   RecommendationStatus = "triggered"
	RecommendationExpired     RecommendationStatus = "expired"
	RecommendationInvalidated RecommendationStatus = "invalidated"
)

// ErrInvalidTransition is returned when a recommendation cannot move to the requested status
var ErrInvalidTransition = errors.New("invalid recommendation status transition")

// PatternRecommendation is a time-boxed trade idea derived from a pattern's matched trades.
// Expiry is computed from ExpiresAt (see EffectiveStatus); nothing rewrites the stored status.
type PatternRecommendation struct {
	ID            string               `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string               `gorm:"type:uuid;index;not null" json:"user_id"`
	PatternID     string               `gorm:"type:uuid;index;not null" json:"pattern_id"`
	Ticker        string               `gorm:"type:text;not null" json:"ticker"`
	Direction     Direction            `gorm:"type:text;not null" json:"direction"`
	EntryZoneLow  float64              `gorm:"type:decimal(15,4)" json:"entry_zone_low"`
	EntryZoneHigh float64              `gorm:"type:decimal(15,4)" json:"entry_zone_high"`
	StopLoss      float64              `gorm:"type:decimal(15,4)" json:"stop_loss"`
	TakeProfit    float64              `gorm:"type:decimal(15,4)" json:"take_profit"`
	Confidence    float64              `gorm:"type:decimal(5,4);not null" json:"confidence"`
	ExpiresAt     time.Time            `gorm:"index;not null" json:"expires_at"`
	Status        RecommendationStatus `gorm:"type:text;not null;default:pending" json:"status"`
	CreatedAt     time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for PatternRecommendation
func (PatternRecommendation) TableName() string {
	return "pattern_recommendations"
}

// BeforeCreate assigns a UUID when the caller did not
func (r *PatternRecommendation) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// EffectiveStatus reports the status as of now: a pending recommendation past ExpiresAt is expired
func (r PatternRecommendation) EffectiveStatus(now time.Time) RecommendationStatus {
	if r.Status == RecommendationPending && !now.Before(r.ExpiresAt) {
		return RecommendationExpired
	}
	return r.Status
}

// Transition moves a pending recommendation to triggered or invalidated
func (r *PatternRecommendation) Transition(to RecommendationStatus, now time.Time) error {
	if to != RecommendationTriggered && to != RecommendationInvalidated {
		return fmt.Errorf("%w: cannot move to %s", ErrInvalidTransition, to)
	}
	if current := r.EffectiveStatus(now); current != RecommendationPending {
		return fmt.Errorf("%w: recommendation is %s", ErrInvalidTransition, current)
	}
	r.Status = to
	return nil
}

// InsightType is the closed set of insight categories
type InsightType string

const (
	InsightPerformance InsightType = "performance"
	InsightPsychology  InsightType = "psychology"
	InsightPattern     InsightType = "pattern"
	InsightRisk        InsightType = "risk"
)

// ErrUnknownInsightType is returned by ParseInsightType for anything outside the closed set
var ErrUnknownInsightType = errors.New("unknown insight type")

// InsightTypes lists every insight category
var InsightTypes = []InsightType{InsightPerformance, InsightPsychology, InsightPattern, InsightRisk}

// ParseInsightType converts user input into an InsightType
func ParseInsightType(s string) (InsightType, error) {
	t := InsightType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range InsightTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownInsightType, s)
}

// Title returns the capitalised category name ("Performance")
func (t InsightType) Title() string {
	if t == "" {
		return ""
	}
	return strings.ToUpper(string(t[:1])) + string(t[1:])
}

// InsightMetrics is the fixed metrics object of an insight
type InsightMetrics struct {
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
	Patterns   []string `json:"patterns"`
	Concerns   []string `json:"concerns"`
	Positives  []string `json:"positives"`
	Effective  []string `json:"effective"`
}

// InsightContent is the structured body of an AI insight
type InsightContent struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Metrics         InsightMetrics `json:"metrics"`
	Recommendations []string       `json:"recommendations"`
}

// Normalize replaces nil lists with empty ones so stored JSON never holds null
func (c *InsightContent) Normalize() {
	for _, list := range []*[]string{
		&c.Metrics.Strengths, &c.Metrics.Weaknesses, &c.Metrics.Patterns,
		&c.Metrics.Concerns, &c.Metrics.Positives, &c.Metrics.Effective,
		&c.Recommendations,
	} {
		if *list == nil {
			*list = []string{}
		}
	}
}

// AIInsight is a persisted, immutable analysis of a trade batch
type AIInsight struct {
	ID        string                             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string                             `gorm:"type:uuid;index;not null" json:"user_id"`
	Type      InsightType                        `gorm:"type:text;not null" json:"type"`
	Content   datatypes.JSONType[InsightContent] `gorm:"type:jsonb;not null" json:"content"`
	CreatedAt time.Time                          `gorm:"autoCreateTime;index" json:"created_at"`
}

// TableName specifies the table name for AIInsight
func (AIInsight) TableName() string {
	return "ai_insights"
}

// BeforeCreate assigns a UUID when the caller did not
func (i *AIInsight) BeforeCreate(*gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// ChatExchange is one question/answer pair of a conversation.
// MessageOrder is assigned by the repository, unique within an owner's conversation.
type ChatExchange struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string         `gorm:"type:uuid;index;not null;uniqueIndex:idx_chat_order,priority:1" json:"user_id"`
	ConversationID string         `gorm:"type:uuid;not null;uniqueIndex:idx_chat_order,priority:2" json:"conversation_id"`
	Message        string         `gorm:"type:text;not null" json:"message"`
	Response       string         `gorm:"type:text;not null" json:"response"`
	Context        datatypes.JSON `gorm:"type:jsonb" json:"context,omitempty"`
	MessageOrder   int            `gorm:"not null;uniqueIndex:idx_chat_order,priority:3" json:"message_order"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for ChatExchange
func (ChatExchange) TableName() string {
	return "ai_chat_history"
}

// BeforeCreate assigns a UUID when the caller did not
func (c *ChatExchange) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// AIProviderKey is a user's encrypted credential for one provider
type AIProviderKey struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       string    `gorm:"type:uuid;not null;uniqueIndex:idx_provider_key_owner,priority:1" json:"user_id"`
	Provider     string    `gorm:"type:text;not null;uniqueIndex:idx_provider_key_owner,priority:2" json:"provider"`
	EncryptedKey string    `gorm:"type:text;not null" json:"-"`
	Model        string    `gorm:"type:text" json:"model,omitempty"`
	IsPreferred  bool      `gorm:"default:false" json:"is_preferred"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for AIProviderKey
func (AIProviderKey) TableName() string {
	return "ai_provider_keys"
}

// BeforeCreate assigns a UUID when the caller did not
func (k *AIProviderKey) BeforeCreate(*gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}
