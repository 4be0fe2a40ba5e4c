package stream

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coverpath/coverpath/pkg/broadcast"
	"github.com/coverpath/coverpath/pkg/events"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func dialTestHub(t *testing.T) (*broadcast.Broadcaster, *Hub, *websocket.Conn) {
	t.Helper()

	broadcaster := broadcast.NewBroadcaster(testLogger())
	hub := NewHub(broadcaster, testLogger())

	server := httptest.NewServer(hub.Handler())
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.Cleanup(func() { conn.Close() })

	return broadcaster, hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any

	require.NoError(t, json.Unmarshal(payload, &msg))

	return msg
}

func TestHandshakeSendsConnectionEstablished(t *testing.T) {
	_, _, conn := dialTestHub(t)

	msg := readMessage(t, conn)

	assert.Equal(t, "connection_established", msg["type"])
}

func TestSubscribedClientReceivesExecutionEvents(t *testing.T) {
	broadcaster, _, conn := dialTestHub(t)

	readMessage(t, conn) // connection_established

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":       "subscribe",
		"execution_id": "exec-1",
	}))

	ack := readMessage(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, "exec-1", ack["execution_id"])

	broadcaster.Publish("exec-1", events.NewBaseEvent(events.StepStartedEvent, "exec-1"))

	event := readMessage(t, conn)
	assert.Equal(t, "step_started", event["type"])
	assert.Equal(t, "exec-1", event["execution_id"])
}

func TestClientOnlySeesSubscribedExecutions(t *testing.T) {
	broadcaster, _, conn := dialTestHub(t)

	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":       "subscribe",
		"execution_id": "exec-a",
	}))
	readMessage(t, conn) // subscribed ack

	broadcaster.Publish("exec-other", events.NewBaseEvent(events.StepStartedEvent, "exec-other"))
	broadcaster.Publish("exec-a", events.NewBaseEvent(events.ExecutionCompletedEvent, "exec-a"))

	event := readMessage(t, conn)
	assert.Equal(t, "exec-a", event["execution_id"])
}

func TestUnsubscribeStopsEventDelivery(t *testing.T) {
	broadcaster, _, conn := dialTestHub(t)

	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":       "subscribe",
		"execution_id": "exec-1",
	}))
	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":       "unsubscribe",
		"execution_id": "exec-1",
	}))

	ack := readMessage(t, conn)
	assert.Equal(t, "unsubscribed", ack["type"])

	assert.Eventually(t, func() bool {
		return broadcaster.SubscriberCount("exec-1") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestMalformedMessageGetsErrorReply(t *testing.T) {
	_, _, conn := dialTestHub(t)

	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestSubscribeRequiresExecutionID(t *testing.T) {
	_, _, conn := dialTestHub(t)

	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "subscribe"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestDisconnectCleansUpSubscriptions(t *testing.T) {
	broadcaster, hub, conn := dialTestHub(t)

	readMessage(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":       "subscribe",
		"execution_id": "exec-1",
	}))
	readMessage(t, conn)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return broadcaster.SubscriberCount("exec-1") == 0 && hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}
