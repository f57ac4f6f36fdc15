package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope every client receives
type WSMessage struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// wsClient tracks one connection and its subscription filters.
// An empty filter matches every event.
type wsClient struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	sessionID string
	userID    string
}

func (c *wsClient) wants(event interfaces.Event) bool {
	if c.sessionID != "" && c.sessionID != event.SessionID {
		return false
	}
	if c.userID != "" && c.userID != event.UserID {
		return false
	}
	return true
}

// WebSocketHandler fans events out to connected clients. Delivery is
// at-most-once: slow or dead subscribers are dropped on write failure
// and no history is replayed on reconnect.
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	events           interfaces.EventService
	progressThrottle *rate.Limiter // Optional throttle for application_progress
	serverInstanceID string        // Unique per startup - clients use to detect restarts
}

// NewWebSocketHandler creates the fan-out handler and subscribes it to
// the event bus
func NewWebSocketHandler(events interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		events:           events,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.ThrottleInterval != "" {
		if interval, err := time.ParseDuration(config.ThrottleInterval); err == nil && interval > 0 {
			h.progressThrottle = rate.NewLimiter(rate.Every(interval), 1)
		} else if err != nil {
			logger.Warn().Err(err).Str("interval", config.ThrottleInterval).Msg("Invalid throttle interval, throttling disabled")
		}
	}

	if events != nil {
		h.subscribe()
	}
	return h
}

func (h *WebSocketHandler) subscribe() {
	eventTypes := []interfaces.EventType{
		interfaces.EventSessionStatusChanged,
		interfaces.EventApplicationProgress,
		interfaces.EventInterventionCreated,
		interfaces.EventInterventionResolved,
		interfaces.EventPipelineAttempt,
		interfaces.EventPipelineFinished,
	}
	for _, eventType := range eventTypes {
		_ = h.events.Subscribe(eventType, func(_ context.Context, event interfaces.Event) error {
			h.BroadcastEvent(event)
			return nil
		})
	}
}

// HandleWebSocket upgrades the connection and registers the client.
// Query parameters session_id and user_id narrow the subscription; with
// neither the client receives all events.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{
		conn:      conn,
		sessionID: r.URL.Query().Get("session_id"),
		userID:    r.URL.Query().Get("user_id"),
	}

	h.mu.Lock()
	h.clients[conn] = client
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().
		Str("session_filter", client.sessionID).
		Str("user_filter", client.userID).
		Msgf("WebSocket client connected (total: %d)", total)

	h.send(client, WSMessage{
		Type:      "connected",
		Payload:   map[string]string{"server_instance_id": h.serverInstanceID},
		Timestamp: time.Now(),
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", remaining)
	}()

	// Keep the connection alive; clients do not send application data
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// BroadcastEvent delivers an event to every client whose filters match
func (h *WebSocketHandler) BroadcastEvent(event interfaces.Event) {
	if event.Type == interfaces.EventApplicationProgress && h.progressThrottle != nil {
		if !h.progressThrottle.Allow() {
			return
		}
	}

	payload := map[string]interface{}{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
	}
	for k, v := range event.Payload {
		payload[k] = v
	}

	msg := WSMessage{
		Type:      string(event.Type),
		Payload:   payload,
		Timestamp: time.Now(),
	}

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, client := range h.clients {
		if client.wants(event) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.send(client, msg)
	}
}

// send writes one message under the client's write mutex; a failed
// write drops the client
func (h *WebSocketHandler) send(client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	client.writeMu.Lock()
	err = client.conn.WriteMessage(websocket.TextMessage, data)
	client.writeMu.Unlock()

	if err != nil {
		h.mu.Lock()
		delete(h.clients, client.conn)
		h.mu.Unlock()
		client.conn.Close()
		h.logger.Warn().Err(err).Msg("Dropped websocket client on write failure")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *WebSocketHandler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
