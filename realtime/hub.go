// Package realtime pushes analysis events to a user's open browser sessions.
//
// Clients connect over a websocket (or SSE as a fallback) and only ever receive
// their own owner's events. When Redis is available events travel through a
// pub/sub channel so every API instance delivers them to its local clients.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trading-journal/cache"
)

// Event types
const (
	EventPatternsAnalyzed      = "patterns.analyzed"
	EventRecommendationCreated = "recommendation.created"
	EventEmbeddingsBackfilled  = "embeddings.backfilled"
	EventInsightCreated        = "insight.created"
)

// eventsChannel is the Redis pub/sub channel shared by all instances
const eventsChannel = "journal:events"

// Event is the JSON frame delivered to clients
type Event struct {
	Type    string      `json:"event"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// envelope addresses a serialized event to one owner
type envelope struct {
	UserID string          `json:"user_id"`
	Data   json.RawMessage `json:"data"`
}

// client is one connection; send is closed by the hub on unregister
type client struct {
	userID string
	send   chan []byte
}

// Hub tracks connections per owner and routes events to them
type Hub struct {
	clients    map[string]map[*client]bool
	register   chan *client
	unregister chan *client
	deliver    chan envelope
	done       chan struct{}
	redis      *cache.RedisClient // nil delivers locally only
	logger     zerolog.Logger
	mu         sync.RWMutex
}

// NewHub creates a hub. A nil redis client keeps delivery in-process.
func NewHub(redis *cache.RedisClient, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		deliver:    make(chan envelope, 1000),
		done:       make(chan struct{}),
		redis:      redis,
		logger:     logger.With().Str("component", "realtime").Logger(),
	}
}

// Run starts the hub loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	if h.redis != nil {
		go h.subscribe(ctx)
	}

	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*client]bool)
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true
			h.mu.Unlock()
			h.logger.Debug().Str("user_id", c.userID).Msg("Client connected")

		case c := <-h.unregister:
			h.remove(c)

		case env := <-h.deliver:
			h.mu.Lock()
			for c := range h.clients[env.UserID] {
				select {
				case c.send <- env.Data:
				default:
					// slow consumer
					h.dropLocked(c)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	set, ok := h.clients[c.userID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.logger.Debug().Str("user_id", c.userID).Msg("Client disconnected")
}

// Publish sends an event to every connection of userID. Delivery is best effort.
func (h *Hub) Publish(ctx context.Context, userID, eventType string, payload interface{}) {
	data, err := json.Marshal(Event{Type: eventType, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		h.logger.Error().Err(err).Str("event", eventType).Msg("Failed to marshal event")
		return
	}
	env := envelope{UserID: userID, Data: data}

	if h.redis != nil {
		err := h.redis.Publish(ctx, eventsChannel, env)
		if err == nil {
			return
		}
		h.logger.Warn().Err(err).Msg("Redis publish failed, delivering locally")
	}
	h.enqueue(env)
}

// attach registers c; it reports false once the hub has stopped
func (h *Hub) attach(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) detach(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) enqueue(env envelope) {
	select {
	case h.deliver <- env:
	default:
		h.logger.Warn().Str("user_id", env.UserID).Msg("Event buffer full, dropping event")
	}
}

// subscribe relays events published by any instance to local clients
func (h *Hub) subscribe(ctx context.Context) {
	pubsub := h.redis.Subscribe(ctx, eventsChannel)
	if pubsub == nil {
		return
	}
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Warn().Err(err).Msg("Malformed event on pub/sub channel")
				continue
			}
			h.enqueue(env)
		}
	}
}

// ClientCount returns the number of open connections of a user
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
