package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trading-journal/auth"
	"trading-journal/database"
	models "trading-journal/database/models_pkg"
	"trading-journal/embeddings"
	"trading-journal/realtime"
)

type tradeRequest struct {
	Date          time.Time        `json:"date"`
	Ticker        string           `json:"ticker"`
	Direction     models.Direction `json:"direction"`
	Size          int              `json:"size"`
	EntryTime     *time.Time       `json:"entry_time"`
	ExitTime      *time.Time       `json:"exit_time"`
	EntryPrice    *float64         `json:"entry_price"`
	ExitPrice     *float64         `json:"exit_price"`
	PnL           float64          `json:"pnl"`
	Commission    float64          `json:"commission"`
	PlannedEntry  *float64         `json:"planned_entry"`
	PlannedStop   *float64         `json:"planned_stop"`
	PlannedTarget *float64         `json:"planned_target"`
	Notes         string           `json:"notes"`
	StrategyID    *string          `json:"strategy_id"`
	SnapshotURL   string           `json:"snapshot_url"`
}

func (r tradeRequest) validate() error {
	if r.Date.IsZero() {
		return database.NewValidationError("date", "is required")
	}
	if strings.TrimSpace(r.Ticker) == "" {
		return database.NewValidationError("ticker", "is required")
	}
	if !r.Direction.Valid() {
		return database.NewValidationErrorWithValue("direction", "must be long or short", r.Direction)
	}
	if r.Size <= 0 {
		return database.NewValidationErrorWithValue("size", "must be positive", r.Size)
	}
	if r.EntryTime != nil && r.ExitTime != nil && !r.ExitTime.After(*r.EntryTime) {
		return database.NewValidationError("exit_time", "must be after entry_time")
	}
	return nil
}

func (r tradeRequest) toTrade(userID string) *models.Trade {
	t := &models.Trade{
		UserID:        userID,
		Date:          r.Date,
		Ticker:        strings.ToUpper(strings.TrimSpace(r.Ticker)),
		Direction:     r.Direction,
		Size:          r.Size,
		EntryTime:     r.EntryTime,
		ExitTime:      r.ExitTime,
		EntryPrice:    r.EntryPrice,
		ExitPrice:     r.ExitPrice,
		PnL:           r.PnL,
		Commission:    r.Commission,
		PlannedEntry:  r.PlannedEntry,
		PlannedStop:   r.PlannedStop,
		PlannedTarget: r.PlannedTarget,
		Notes:         r.Notes,
		StrategyID:    r.StrategyID,
		SnapshotURL:   r.SnapshotURL,
	}
	t.ApplyNetPnL()
	return t
}

type setupRequest struct {
	Ticker          string           `json:"ticker"`
	Direction       models.Direction `json:"direction"`
	EntryPrice      float64          `json:"entry_price"`
	StopLoss        float64          `json:"stop_loss"`
	TakeProfit      float64          `json:"take_profit"`
	PositionSize    int              `json:"position_size"`
	MaxPositionSize int              `json:"max_position_size"`
	Notes           string           `json:"notes"`
}

type planRequest struct {
	Date           time.Time      `json:"date"`
	MarketBias     string         `json:"market_bias"`
	KeyLevels      []string       `json:"key_levels"`
	EconomicEvents []string       `json:"economic_events"`
	MaxDailyLoss   float64        `json:"max_daily_loss"`
	Notes          string         `json:"notes"`
	Setups         []setupRequest `json:"setups"`
}

func (r planRequest) validate() error {
	if r.Date.IsZero() {
		return database.NewValidationError("date", "is required")
	}
	for _, s := range r.Setups {
		if strings.TrimSpace(s.Ticker) == "" {
			return database.NewValidationError("setups.ticker", "is required")
		}
		if !s.Direction.Valid() {
			return database.NewValidationErrorWithValue("setups.direction", "must be long or short", s.Direction)
		}
		if s.PositionSize <= 0 {
			return database.NewValidationErrorWithValue("setups.position_size", "must be positive", s.PositionSize)
		}
	}
	return nil
}

func (r planRequest) toPlan(userID string) *models.TradingPlan {
	p := &models.TradingPlan{
		UserID:         userID,
		Date:           r.Date,
		MarketBias:     r.MarketBias,
		KeyLevels:      r.KeyLevels,
		EconomicEvents: r.EconomicEvents,
		MaxDailyLoss:   r.MaxDailyLoss,
		Notes:          r.Notes,
	}
	for _, s := range r.Setups {
		p.Setups = append(p.Setups, models.TradeSetup{
			Ticker:          strings.ToUpper(strings.TrimSpace(s.Ticker)),
			Direction:       s.Direction,
			EntryPrice:      s.EntryPrice,
			StopLoss:        s.StopLoss,
			TakeProfit:      s.TakeProfit,
			PositionSize:    s.PositionSize,
			MaxPositionSize: s.MaxPositionSize,
			Notes:           s.Notes,
		})
	}
	return p
}

// handleCreateTrade stores a trade and indexes it. Indexing never fails the request.
func (s *Server) handleCreateTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.respondWithError(c, err)
		return
	}

	userID := auth.UserID(c)
	trade := req.toTrade(userID)
	if err := s.Trades.Create(c.Request.Context(), trade); err != nil {
		s.respondWithError(c, err)
		return
	}

	indexer, _ := s.Indexers.Initialize(c.Request.Context(), userID)
	outcome := indexer.IndexTrade(c.Request.Context(), *trade)

	successResponse(c, http.StatusCreated, gin.H{
		"trade":    trade,
		"indexed":  outcome.Indexed,
		"degraded": outcome.Degraded,
	})
}

func (s *Server) handleDeleteTrade(c *gin.Context) {
	if err := s.Trades.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUpsertPlan replaces the plan for its date and re-indexes it
func (s *Server) handleUpsertPlan(c *gin.Context) {
	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		s.respondWithError(c, err)
		return
	}

	userID := auth.UserID(c)
	plan := req.toPlan(userID)
	if err := s.Plans.Upsert(c.Request.Context(), plan); err != nil {
		s.respondWithError(c, err)
		return
	}

	indexer, _ := s.Indexers.Initialize(c.Request.Context(), userID)
	outcome := indexer.IndexPlan(c.Request.Context(), *plan)

	successResponse(c, http.StatusOK, gin.H{
		"plan":     plan,
		"indexed":  outcome.Indexed,
		"degraded": outcome.Degraded,
	})
}

func (s *Server) handleDeletePlan(c *gin.Context) {
	if err := s.Plans.Delete(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		s.respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBackfill(c *gin.Context) {
	userID := auth.UserID(c)
	indexer, _ := s.Indexers.Initialize(c.Request.Context(), userID)
	report := indexer.Backfill(c.Request.Context())

	if !report.Skipped && report.Degraded == "" {
		s.Events.Publish(c.Request.Context(), userID, realtime.EventEmbeddingsBackfilled, report)
	}
	successResponse(c, http.StatusOK, report)
}

// handleSearch returns similar trades and plans; an unavailable index yields an empty result
func (s *Server) handleSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		errorResponse(c, http.StatusBadRequest, "q is required")
		return
	}
	from, err := queryTime(c, "from")
	if err != nil {
		s.respondWithError(c, err)
		return
	}
	to, err := queryTime(c, "to")
	if err != nil {
		s.respondWithError(c, err)
		return
	}

	indexer, _ := s.Indexers.Initialize(c.Request.Context(), auth.UserID(c))
	result := indexer.Search(c.Request.Context(), embeddings.SearchQuery{
		Text:  q,
		Limit: queryInt(c, "limit", 0),
		From:  from,
		To:    to,
	})
	successResponse(c, http.StatusOK, result)
}
