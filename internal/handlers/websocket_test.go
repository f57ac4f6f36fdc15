package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/peto/internal/common"
	"github.com/ternarybob/peto/internal/events"
	"github.com/ternarybob/peto/internal/interfaces"
)

func newWSFixture(t *testing.T, config *common.WebSocketConfig) (*WebSocketHandler, *httptest.Server, interfaces.EventService) {
	t.Helper()
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	handler := NewWebSocketHandler(bus, logger, config)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", handler.HandleWebSocket)
	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		handler.Close()
		server.Close()
	})
	return handler, server, bus
}

func dialWS(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if query != "" {
		url += "?" + query
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, handler *WebSocketHandler, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d (got %d)", n, handler.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestConnectReceivesServerInstanceID(t *testing.T) {
	_, server, _ := newWSFixture(t, nil)
	conn := dialWS(t, server, "")

	msg := readMessage(t, conn)
	assert.Equal(t, "connected", msg.Type)

	payload := msg.Payload.(map[string]interface{})
	assert.NotEmpty(t, payload["server_instance_id"])
}

func TestEventBusDeliveryToGlobalClient(t *testing.T) {
	_, server, bus := newWSFixture(t, nil)
	conn := dialWS(t, server, "")
	readMessage(t, conn) // connected hello

	err := bus.PublishSync(context.Background(), interfaces.Event{
		Type:      interfaces.EventInterventionCreated,
		SessionID: "sess_1",
		UserID:    "user_1",
		Payload:   map[string]interface{}{"intervention_id": "int_1"},
	})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, "intervention_created", msg.Type)
	assert.False(t, msg.Timestamp.IsZero())

	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "sess_1", payload["session_id"])
	assert.Equal(t, "int_1", payload["intervention_id"])
}

func TestSessionFilterScopesDelivery(t *testing.T) {
	handler, server, _ := newWSFixture(t, nil)

	scoped := dialWS(t, server, "session_id=sess_1")
	other := dialWS(t, server, "session_id=sess_2")
	readMessage(t, scoped)
	readMessage(t, other)
	waitForClients(t, handler, 2)

	handler.BroadcastEvent(interfaces.Event{
		Type:      interfaces.EventApplicationProgress,
		SessionID: "sess_1",
	})

	msg := readMessage(t, scoped)
	assert.Equal(t, "application_progress", msg.Type)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "client filtered to sess_2 must not receive sess_1 events")
}

func TestUserFilterScopesDelivery(t *testing.T) {
	handler, server, _ := newWSFixture(t, nil)

	scoped := dialWS(t, server, "user_id=user_1")
	readMessage(t, scoped)
	waitForClients(t, handler, 1)

	handler.BroadcastEvent(interfaces.Event{
		Type:   interfaces.EventPipelineFinished,
		UserID: "user_2",
	})
	handler.BroadcastEvent(interfaces.Event{
		Type:   interfaces.EventPipelineFinished,
		UserID: "user_1",
	})

	msg := readMessage(t, scoped)
	payload := msg.Payload.(map[string]interface{})
	assert.Equal(t, "user_1", payload["user_id"])
}

func TestProgressThrottleDropsBursts(t *testing.T) {
	config := &common.WebSocketConfig{ThrottleInterval: "1h"}
	handler, server, _ := newWSFixture(t, config)

	conn := dialWS(t, server, "")
	readMessage(t, conn)
	waitForClients(t, handler, 1)

	for i := 0; i < 5; i++ {
		handler.BroadcastEvent(interfaces.Event{Type: interfaces.EventApplicationProgress})
	}
	// Non-progress events are never throttled
	handler.BroadcastEvent(interfaces.Event{Type: interfaces.EventSessionStatusChanged})

	first := readMessage(t, conn)
	assert.Equal(t, "application_progress", first.Type)
	second := readMessage(t, conn)
	assert.Equal(t, "session_status_changed", second.Type)
}

func TestDeadClientIsDropped(t *testing.T) {
	handler, server, _ := newWSFixture(t, nil)

	conn := dialWS(t, server, "")
	readMessage(t, conn)
	waitForClients(t, handler, 1)

	conn.Close()
	// First write may succeed into the OS buffer; keep broadcasting
	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("dead client never dropped")
		}
		handler.BroadcastEvent(interfaces.Event{Type: interfaces.EventSessionStatusChanged})
		time.Sleep(20 * time.Millisecond)
	}
}
