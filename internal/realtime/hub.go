package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait (seconds) drive the WebSocket heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains stream_id -> set of connections and fans events out to them.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// streamID -> map[clientID]*Client
	streams map[uuid.UUID]map[string]*Client
	subs    map[uuid.UUID]func() // cancel Redis subscription per stream
	mu      sync.RWMutex
	logger  *zap.Logger
	pub     Publisher
	sub     Subscriber
	stats   Stats
}

// Stats receives connection and chat counts (optional instrumentation).
type Stats interface {
	WSConnected()
	WSDisconnected()
	ChatMessage()
}

// Publisher publishes a stream event for other instances to rebroadcast.
type Publisher interface {
	PublishStreamEvent(streamID uuid.UUID, event string, payload []byte) error
}

// Subscriber subscribes to a stream's channel and invokes handler for incoming events.
type Subscriber interface {
	SubscribeStream(streamID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. pub and sub may be nil for
// single-instance deployments and tests.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		streams: make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[uuid.UUID]func()),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

// Register adds a client to a stream room, starting the Redis subscription
// for the room when its first client arrives.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.streams[c.StreamID] == nil {
		h.streams[c.StreamID] = make(map[string]*Client)
		if h.sub != nil {
			cancel, err := h.sub.SubscribeStream(c.StreamID, func(event string, payload []byte) {
				h.BroadcastToStreamLocal(c.StreamID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.StreamID] = cancel
			}
		}
	}
	h.streams[c.StreamID][c.ID] = c
	h.mu.Unlock()
	if h.stats != nil {
		h.stats.WSConnected()
	}
	h.logger.Debug("client joined stream room", zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID.String()))
}

// SetStats injects instrumentation. May stay unset.
func (h *Hub) SetStats(stats Stats) { h.stats = stats }

// Unregister removes a client from its stream room, cancelling the Redis
// subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.streams[c.StreamID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.streams, c.StreamID)
			if cancel, ok := h.subs[c.StreamID]; ok {
				cancel()
				delete(h.subs, c.StreamID)
			}
		}
	}
	h.mu.Unlock()
	if h.stats != nil {
		h.stats.WSDisconnected()
	}
	h.logger.Debug("client left stream room", zap.String("client_id", c.ID), zap.String("stream_id", c.StreamID.String()))
}

// BroadcastToStreamLocal sends a message to the room's local clients only.
func (h *Hub) BroadcastToStreamLocal(streamID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.streams[streamID]
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastToStream sends to local clients and publishes to Redis so other
// instances' rooms see the event too. Satisfies streams.Broadcaster.
func (h *Hub) BroadcastToStream(streamID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToStreamLocal(streamID, event, json.RawMessage(data))
	if h.pub != nil {
		_ = h.pub.PublishStreamEvent(streamID, event, data)
	}
}

// PublishToStreamOnly publishes to Redis only, so the subscriber callback
// performs the single broadcast for every instance including this one. Used
// for chat_message to avoid delivering a local duplicate.
func (h *Hub) PublishToStreamOnly(streamID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if h.pub != nil {
		_ = h.pub.PublishStreamEvent(streamID, event, data)
		return
	}
	h.BroadcastToStreamLocal(streamID, event, json.RawMessage(data))
}

// RoomSize returns the number of connections (not distinct viewers) in a room.
func (h *Hub) RoomSize(streamID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams[streamID])
}

// SendToClient sends a message to a single client in a room.
func (h *Hub) SendToClient(streamID uuid.UUID, clientID string, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := WSMessage{Event: event, Data: data}
	h.mu.RLock()
	c := h.streams[streamID][clientID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
