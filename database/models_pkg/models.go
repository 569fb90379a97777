package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Direction is the side of a trade or setup
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Valid reports whether d is a known direction
func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Trade represents one completed position logged in the journal.
// Trades are owned by exactly one user and are the input of every analysis pass.
//
// Key Fields:
//   - EntryTime/ExitTime: Wall-clock execution timestamps as the trader recorded them (stored without zone)
//   - Size: Number of contracts
//   - PnL: Raw profit/loss as reported by the broker
//   - Commission: Commission per contract
//   - NetPnL: PnL - Commission*Size (see NetPnL)
//   - PlannedEntry/PlannedStop/PlannedTarget: Optional prices from the trader's plan
//   - EntryPrice/ExitPrice: Optional fills, used as reference prices for recommendations
//
// Deleting a trade removes its embedding and any pattern matches referencing it.
type Trade struct {
	ID            string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        string     `gorm:"type:uuid;index;index:idx_trades_user_entry,priority:1;not null" json:"user_id"`
	Date          time.Time  `gorm:"type:date;not null" json:"date"`
	Ticker        string     `gorm:"type:text;index;not null" json:"ticker"`
	Direction     Direction  `gorm:"type:text;not null" json:"direction"`
	Size          int        `gorm:"not null" json:"size"`
	EntryTime     *time.Time `gorm:"type:timestamp;index:idx_trades_user_entry,priority:2" json:"entry_time,omitempty"`
	ExitTime      *time.Time `gorm:"type:timestamp" json:"exit_time,omitempty"`
	EntryPrice    *float64   `gorm:"type:decimal(15,4)" json:"entry_price,omitempty"`
	ExitPrice     *float64   `gorm:"type:decimal(15,4)" json:"exit_price,omitempty"`
	PnL           float64    `gorm:"column:pnl;type:decimal(15,2);not null" json:"pnl"`
	Commission    float64    `gorm:"type:decimal(10,2);default:0" json:"commission"`
	NetPnL        float64    `gorm:"column:net_pnl;type:decimal(15,2);not null" json:"net_pnl"`
	PlannedEntry  *float64   `gorm:"type:decimal(15,4)" json:"planned_entry,omitempty"`
	PlannedStop   *float64   `gorm:"type:decimal(15,4)" json:"planned_stop,omitempty"`
	PlannedTarget *float64   `gorm:"type:decimal(15,4)" json:"planned_target,omitempty"`
	Notes         string     `gorm:"type:text" json:"notes,omitempty"`
	StrategyID    *string    `gorm:"type:uuid" json:"strategy_id,omitempty"`
	SnapshotURL   string     `gorm:"type:text" json:"snapshot_url,omitempty"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for Trade
func (Trade) TableName() string {
	return "trades"
}

// BeforeCreate assigns a UUID when the caller did not and pins the
// execution timestamps to their recorded wall clock.
func (t *Trade) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.NormalizeTimes()
	return nil
}

// WallClock re-labels t's local date and clock reading as UTC.
// The columns are timestamp without time zone, so the stored value reads back
// with the same hour the trader recorded regardless of the session zone.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// NormalizeTimes applies WallClock to EntryTime and ExitTime
func (t *Trade) NormalizeTimes() {
	if t.EntryTime != nil {
		e := WallClock(*t.EntryTime)
		t.EntryTime = &e
	}
	if t.ExitTime != nil {
		x := WallClock(*t.ExitTime)
		t.ExitTime = &x
	}
}

// DurationSeconds returns exit - entry in seconds.
// Missing or inverted timestamps yield 0 so downstream statistics never see a negative duration.
func (t Trade) DurationSeconds() int64 {
	if t.EntryTime == nil || t.ExitTime == nil {
		return 0
	}
	d := t.ExitTime.Sub(*t.EntryTime)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// DurationMinutes is DurationSeconds expressed in minutes
func (t Trade) DurationMinutes() float64 {
	return float64(t.DurationSeconds()) / 60
}

// IsWin reports whether the trade closed with a positive net result
func (t Trade) IsWin() bool {
	return t.NetPnL > 0
}

// ReferencePrice returns the fill price if known, else the planned entry
func (t Trade) ReferencePrice() (float64, bool) {
	if t.EntryPrice != nil {
		return *t.EntryPrice, true
	}
	if t.PlannedEntry != nil {
		return *t.PlannedEntry, true
	}
	return 0, false
}

// TradingPlan is a trader's plan for one calendar date.
// There is at most one plan per user per date; saving again replaces it.
type TradingPlan struct {
	ID             string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string         `gorm:"type:uuid;not null;uniqueIndex:idx_plan_user_date,priority:1" json:"user_id"`
	Date           time.Time      `gorm:"type:date;not null;uniqueIndex:idx_plan_user_date,priority:2" json:"date"`
	MarketBias     string         `gorm:"type:text" json:"market_bias"`
	KeyLevels      pq.StringArray `gorm:"type:text[]" json:"key_levels"`
	EconomicEvents pq.StringArray `gorm:"type:text[]" json:"economic_events"`
	MaxDailyLoss   float64        `gorm:"type:decimal(15,2)" json:"max_daily_loss"`
	Notes          string         `gorm:"type:text" json:"notes,omitempty"`
	Setups         []TradeSetup   `gorm:"foreignKey:TradingPlanID;constraint:OnDelete:CASCADE" json:"setups,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for TradingPlan
func (TradingPlan) TableName() string {
	return "trading_plans"
}

// BeforeCreate assigns a UUID when the caller did not
func (p *TradingPlan) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// TradeSetup is a planned trade nested inside a TradingPlan.
// RiskAmount and RewardAmount are derived, see ApplyRiskReward.
type TradeSetup struct {
	ID              string    `gorm:"type:uuid;primaryKey" json:"id"`
	TradingPlanID   string    `gorm:"type:uuid;index;not null" json:"trading_plan_id"`
	UserID          string    `gorm:"type:uuid;index;not null" json:"user_id"`
	Ticker          string    `gorm:"type:text;not null" json:"ticker"`
	Direction       Direction `gorm:"type:text;not null" json:"direction"`
	EntryPrice      float64   `gorm:"type:decimal(15,4)" json:"entry_price"`
	StopLoss        float64   `gorm:"type:decimal(15,4)" json:"stop_loss"`
	TakeProfit      float64   `gorm:"type:decimal(15,4)" json:"take_profit"`
	PositionSize    int       `json:"position_size"`
	MaxPositionSize int       `json:"max_position_size"`
	RiskAmount      float64   `gorm:"type:decimal(15,2)" json:"risk_amount"`
	RewardAmount    float64   `gorm:"type:decimal(15,2)" json:"reward_amount"`
	Notes           string    `gorm:"type:text" json:"notes,omitempty"`
}

// TableName specifies the table name for TradeSetup
func (TradeSetup) TableName() string {
	return "trade_plans"
}

// BeforeCreate assigns a UUID when the caller did not
func (s *TradeSetup) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
