package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Wyydra/nexuscall/internal/adapter/driven/gateway/ws"
	"github.com/Wyydra/nexuscall/internal/core/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inboundFrame struct {
	Type   string          `json:"type"`
	CallID string          `json:"call_id"`
	Data   json.RawMessage `json:"data"`
}

func dial(t *testing.T, s *testServer, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?user_id=" + user
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want string, match func(inboundFrame) bool) inboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f inboundFrame
		require.NoError(t, conn.ReadJSON(&f))
		if f.Type == want && (match == nil || match(f)) {
			return f
		}
	}
}

func statusIs(status domain.CallStatus) func(inboundFrame) bool {
	return func(f inboundFrame) bool {
		var c domain.Call
		return json.Unmarshal(f.Data, &c) == nil && c.Status == status
	}
}

func TestSocketSendsSnapshotOnConnect(t *testing.T) {
	s := newTestServer(t, allDevices())
	conn := dial(t, s, "alice")

	f := readUntil(t, conn, frameSnapshot, nil)
	var snap struct {
		Call *domain.Call `json:"call"`
	}
	require.NoError(t, json.Unmarshal(f.Data, &snap))
	assert.Nil(t, snap.Call)
}

func TestSocketCommandsDriveTheCall(t *testing.T) {
	s := newTestServer(t, allDevices())
	conn := dial(t, s, "alice")
	readUntil(t, conn, frameSnapshot, nil)
	require.Eventually(t, func() bool { return s.hub.Clients("alice") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":      "call.start",
		"receiver":  map[string]string{"id": "john"},
		"call_type": "video",
	}))

	readUntil(t, conn, string(domain.EventTypeStatus), statusIs(domain.StatusCalling))
	readUntil(t, conn, string(domain.EventTypeStatus), statusIs(domain.StatusConnected))
	readUntil(t, conn, string(domain.EventTypeDuration), nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "call.video"}))
	f := readUntil(t, conn, string(domain.EventTypeControls), nil)
	var controls domain.CallControls
	require.NoError(t, json.Unmarshal(f.Data, &controls))
	assert.False(t, controls.VideoEnabled)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "call.end"}))
	readUntil(t, conn, string(domain.EventTypeStatus), statusIs(domain.StatusEnded))
	readUntil(t, conn, string(domain.EventTypeCleared), nil)
}

func TestSocketRejectsBadCommands(t *testing.T) {
	s := newTestServer(t, allDevices())
	conn := dial(t, s, "alice")
	readUntil(t, conn, frameSnapshot, nil)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "call.accept"}))
	f := readUntil(t, conn, frameError, nil)
	var e errorFrame
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, "call.accept", e.Command)
	assert.Equal(t, http.StatusConflict, e.Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "call.dance"}))
	f = readUntil(t, conn, frameError, nil)
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, http.StatusBadRequest, e.Status)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	f = readUntil(t, conn, frameError, nil)
	require.NoError(t, json.Unmarshal(f.Data, &e))
	assert.Equal(t, http.StatusBadRequest, e.Status)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "call.snapshot"}))
	readUntil(t, conn, frameSnapshot, nil)
}

func TestSocketEventsStayWithTheirUser(t *testing.T) {
	s := newTestServer(t, allDevices())
	alice := dial(t, s, "alice")
	bob := dial(t, s, "bob")
	readUntil(t, alice, frameSnapshot, nil)
	readUntil(t, bob, frameSnapshot, nil)

	status, _ := s.do(t, http.MethodPost, "/api/call/incoming", "alice", map[string]any{
		"caller": map[string]string{"id": "jane"},
		"type":   "voice",
	})
	require.Equal(t, http.StatusCreated, status)
	readUntil(t, alice, string(domain.EventTypeStatus), statusIs(domain.StatusRinging))

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var f inboundFrame
	assert.Error(t, bob.ReadJSON(&f))
}

func TestClosingLastSocketReleasesSession(t *testing.T) {
	s := newTestServer(t, allDevices())
	first := dial(t, s, "alice")
	second := dial(t, s, "alice")
	readUntil(t, first, frameSnapshot, nil)
	readUntil(t, second, frameSnapshot, nil)
	assert.Equal(t, 1, s.sessions.Len())

	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return s.hub.Clients("alice") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.sessions.Len())

	require.NoError(t, second.Close())
	assert.Eventually(t, func() bool { return s.sessions.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSocketWithCallKeepsSessionAfterClose(t *testing.T) {
	s := newTestServer(t, allDevices())
	conn := dial(t, s, "alice")
	readUntil(t, conn, frameSnapshot, nil)

	status, _ := s.do(t, http.MethodPost, "/api/call/incoming", "alice", map[string]any{
		"caller": map[string]string{"id": "jane"},
		"type":   "voice",
	})
	require.Equal(t, http.StatusCreated, status)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return s.hub.Clients("alice") == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.StatusRinging, s.snapshot(t, "alice").Status())
}

func TestStalledSocketDoesNotBlockOthers(t *testing.T) {
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	ctx := context.Background()

	stalled := newWSClient("alice", nil)
	bob := newWSClient("bob", nil)
	hub.Register(stalled)
	hub.Register(bob)
	require.Eventually(t, func() bool {
		return hub.Clients("alice") == 1 && hub.Clients("bob") == 1
	}, time.Second, 5*time.Millisecond)

	ev := domain.Event{Type: domain.EventTypeStatus, UserID: "alice"}
	for range sendBuffer {
		require.NoError(t, stalled.SendEvent(ev))
	}
	assert.ErrorIs(t, stalled.SendEvent(ev), ErrSendBufferFull)

	require.NoError(t, hub.Publish(ctx, ev))
	require.Eventually(t, func() bool { return hub.Clients("alice") == 0 }, time.Second, 5*time.Millisecond)
	select {
	case <-stalled.done:
	default:
		t.Fatal("stalled client still open")
	}

	require.NoError(t, hub.Publish(ctx, domain.Event{Type: domain.EventTypeStatus, UserID: "bob"}))
	assert.Eventually(t, func() bool { return len(bob.send) == 1 }, time.Second, 5*time.Millisecond)
}
