package assistant

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"trading-journal/database"
	models "trading-journal/database/models_pkg"
	"trading-journal/embeddings"
	"trading-journal/llm"
)

const (
	historyTurns = 6   // previous exchanges replayed to the provider
	statsWindow  = 200 // trades the account statistics are computed over
)

// ChatRequest is one user message
type ChatRequest struct {
	ConversationID string     `json:"conversation_id"`
	Message        string     `json:"message"`
	From           *time.Time `json:"from,omitempty"`
	To             *time.Time `json:"to,omitempty"`
}

// ChatReply is the cleaned assistant answer
type ChatReply struct {
	ConversationID string              `json:"conversation_id"`
	Response       string              `json:"response"`
	MessageOrder   int                 `json:"message_order"`
	TradeIDs       []string            `json:"trade_ids"`
	PlanIDs        []string            `json:"plan_ids"`
	Degraded       embeddings.Degraded `json:"degraded,omitempty"`
}

// turnContext is stored with the exchange
type turnContext struct {
	Provider string              `json:"provider"`
	TradeIDs []string            `json:"trade_ids"`
	PlanIDs  []string            `json:"plan_ids"`
	Stats    map[string]float64  `json:"stats,omitempty"`
	From     *time.Time          `json:"from,omitempty"`
	To       *time.Time          `json:"to,omitempty"`
	Degraded embeddings.Degraded `json:"degraded,omitempty"`
}

// Chat answers one message. Once started, a turn runs to completion and is
// persisted even if the caller goes away. The exchange is stored before the
// reply is returned; provider failures surface only as ErrGenerateResponse.
func (s *Session) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, database.NewValidationError("message", "required")
	}
	convID := req.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	} else if _, err := uuid.Parse(convID); err != nil {
		return nil, database.NewValidationErrorWithValue("conversation_id", "must be a UUID", convID)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.turnTimeout)
	defer cancel()

	log := s.logger.With().Str("conversation_id", convID).Logger()

	retrieved := s.searcher.Search(ctx, embeddings.SearchQuery{Text: message, From: req.From, To: req.To})
	if retrieved.Degraded != embeddings.NotDegraded {
		log.Warn().Str("degraded", string(retrieved.Degraded)).Msg("Answering without retrieved context")
	}

	stats := s.accountStats(ctx)

	history, err := s.history.Recent(ctx, s.userID, convID, historyTurns)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load conversation history")
		history = nil
	}

	messages := make([]llm.Message, 0, len(history)*2+1)
	for _, ex := range history {
		messages = append(messages,
			llm.Message{Role: "user", Content: ex.Message},
			llm.Message{Role: "assistant", Content: ex.Response})
	}
	messages = append(messages, llm.Message{Role: "user", Content: message})

	completion := s.defaults.Completion(llm.CompletionRequest{
		System: llm.BuildChatSystemPrompt(llm.ChatPromptInput{
			Stats:  stats,
			Trades: retrieved.Trades,
			Plans:  retrieved.Plans,
		}),
		Messages: messages,
	})

	raw, err := llm.Retry(ctx, s.retry, log, "chat", func(ctx context.Context) (string, error) {
		return s.provider.Complete(ctx, completion)
	})
	if err != nil {
		log.Error().Err(err).Msg("Chat completion failed")
		return nil, ErrGenerateResponse
	}
	response := llm.SanitizeChatResponse(raw)
	if response == "" {
		log.Error().Int("raw_length", len(raw)).Msg("Chat reply empty after sanitizing")
		return nil, ErrGenerateResponse
	}

	tc := turnContext{
		Provider: s.provider.Name(),
		TradeIDs: tradeIDs(retrieved.Trades),
		PlanIDs:  planIDs(retrieved.Plans),
		Stats:    stats,
		From:     req.From,
		To:       req.To,
		Degraded: retrieved.Degraded,
	}
	blob, err := json.Marshal(tc)
	if err != nil {
		blob = []byte("{}")
	}

	ex := &models.ChatExchange{
		UserID:         s.userID,
		ConversationID: convID,
		Message:        message,
		Response:       response,
		Context:        datatypes.JSON(blob),
	}
	if err := s.history.Append(ctx, ex); err != nil {
		log.Error().Err(err).Msg("Failed to persist chat exchange")
		return nil, err
	}

	return &ChatReply{
		ConversationID: convID,
		Response:       response,
		MessageOrder:   ex.MessageOrder,
		TradeIDs:       tc.TradeIDs,
		PlanIDs:        tc.PlanIDs,
		Degraded:       retrieved.Degraded,
	}, nil
}

// accountStats summarises recent trades for the system prompt; failures yield none
func (s *Session) accountStats(ctx context.Context) map[string]float64 {
	trades, err := s.trades.ListByUser(ctx, s.userID, statsWindow)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to load trades for statistics")
		return nil
	}
	if len(trades) == 0 {
		return nil
	}

	var wins, losses int
	var net, grossWin, grossLoss float64
	for _, t := range trades {
		net += t.NetPnL
		switch {
		case t.NetPnL > 0:
			wins++
			grossWin += t.NetPnL
		case t.NetPnL < 0:
			losses++
			grossLoss -= t.NetPnL
		}
	}

	stats := map[string]float64{
		"total_trades":  float64(len(trades)),
		"win_rate_pct":  math.Round(float64(wins)/float64(len(trades))*10000) / 100,
		"total_net_pnl": net,
	}
	if wins > 0 {
		stats["average_win"] = grossWin / float64(wins)
	}
	if losses > 0 {
		stats["average_loss"] = grossLoss / float64(losses)
	}
	return stats
}

func tradeIDs(trades []models.Trade) []string {
	out := make([]string, 0, len(trades))
	for _, t := range trades {
		out = append(out, t.ID)
	}
	return out
}

func planIDs(plans []models.TradingPlan) []string {
	out := make([]string, 0, len(plans))
	for _, p := range plans {
		out = append(out, p.ID)
	}
	return out
}
