package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/andyyong11/streamdj/internal/chat"
	"github.com/andyyong11/streamdj/internal/presence"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Client->server events.
const (
	EventJoinStreamViewers = "join_stream_viewers"
	EventViewerJoined      = "viewer_joined"
	EventViewerLeft        = "viewer_left"
	EventHeartbeat         = "heartbeat"
	EventSendMessage       = "send_message"
)

// Server->client events.
const (
	EventViewerCountUpdate = "viewer_count_update"
	EventChatMessage       = "chat_message"
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection watching a stream.
// Identity is either the authenticated user id or a client-persisted
// anonymous UUID; presence counts distinct identities, not connections.
type Client struct {
	ID       string
	StreamID uuid.UUID
	Identity string
	Name     string
	hub      *Hub
	registry *presence.Registry
	conn     *websocket.Conn
	send     chan WSMessage
	logger   *zap.Logger
	present  bool // joined the viewer set via join_stream_viewers
}

// ServeWs handles the WebSocket upgrade and runs the client loop.
// Authenticated viewers pass token=<jwt>; anonymous viewers pass
// viewer_id=<persisted uuid>.
func ServeWs(hub *Hub, registry *presence.Registry, logger *zap.Logger, jwtValidate func(token string) (userID, name string, err error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		streamIDStr := c.Query("stream_id")
		if streamIDStr == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stream_id required"})
			return
		}
		streamID, err := uuid.Parse(streamIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stream_id"})
			return
		}

		var identity, name string
		if token := c.Query("token"); token != "" {
			userID, displayName, err := jwtValidate(token)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			identity, name = userID, displayName
		} else if viewerID := c.Query("viewer_id"); viewerID != "" {
			if _, err := uuid.Parse(viewerID); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid viewer_id"})
				return
			}
			identity = viewerID
			name = "anonymous"
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token or viewer_id required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:       uuid.New().String(),
			StreamID: streamID,
			Identity: identity,
			Name:     name,
			hub:      hub,
			registry: registry,
			conn:     conn,
			send:     make(chan WSMessage, 256),
			logger:   logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		if c.present {
			c.registry.Leave(c.StreamID, c.Identity)
			c.hub.BroadcastToStream(c.StreamID, EventUserLeft, chat.SystemMessage(c.Name+" left"))
		}
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		c.registry.Heartbeat(c.StreamID, c.Identity)
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case EventJoinStreamViewers:
			if !c.present {
				c.present = true
				c.registry.Join(c.StreamID, c.Identity)
				c.hub.BroadcastToStream(c.StreamID, EventUserJoined, chat.SystemMessage(c.Name+" joined"))
			}
			c.hub.SendToClient(c.StreamID, c.ID, EventViewerCountUpdate, map[string]int{
				"count": c.registry.Count(c.StreamID),
			})
		case EventViewerJoined:
			// Extra connection for the same identity (second tab); refcounted.
			if c.present {
				c.registry.Join(c.StreamID, c.Identity)
			}
		case EventViewerLeft:
			if c.present {
				c.registry.Leave(c.StreamID, c.Identity)
			}
		case EventHeartbeat:
			c.registry.Heartbeat(c.StreamID, c.Identity)
		case EventSendMessage:
			var m chat.Message
			if err := json.Unmarshal(msg.Data, &m); err != nil || m.Text == "" {
				continue
			}
			// Sender identity is taken from the connection, not the payload.
			m.SenderID = c.Identity
			if m.SenderName == "" {
				m.SenderName = c.Name
			}
			m.System = false
			// Publish only: the Redis subscriber broadcasts once for all
			// instances, so local clients never see a duplicate.
			c.hub.PublishToStreamOnly(c.StreamID, EventChatMessage, m)
			if c.hub.stats != nil {
				c.hub.stats.ChatMessage()
			}
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
