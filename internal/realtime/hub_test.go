package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

func allowAll(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error {
	return nil
}

func setupTestHub(t *testing.T, auth AuthFunc, cfg Config) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(auth, cfg, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func authenticate(t *testing.T, ws *websocket.Conn, recipientID uuid.UUID) {
	t.Helper()

	payload, _ := json.Marshal(AuthRequest{
		RecipientID:   recipientID.String(),
		RecipientKind: "account",
		Token:         "token",
	})
	if err := ws.WriteJSON(Envelope{Event: "authenticate", Payload: payload}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}

	var ack Envelope
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Event != "authenticated" {
		t.Fatalf("expected authenticated ack, got %q", ack.Event)
	}
}

func waitForRoomSize(t *testing.T, hub *Hub, recipientID uuid.UUID, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.RoomSize(recipientID) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("room size never reached %d, have %d", want, hub.RoomSize(recipientID))
}

func readEnvelope(t *testing.T, ws *websocket.Conn) Envelope {
	t.Helper()

	var env Envelope
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := ws.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestHub_AuthenticateAndReceive(t *testing.T) {
	hub, srv := setupTestHub(t, allowAll, Config{})
	recipientID := uuid.New()

	ws := dial(t, srv)
	authenticate(t, ws, recipientID)
	waitForRoomSize(t, hub, recipientID, 1)

	if err := hub.EmitToRecipient(recipientID, EventNewNotification, map[string]any{"title": "hello"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	env := readEnvelope(t, ws)
	if env.Event != EventNewNotification {
		t.Fatalf("expected %s, got %s", EventNewNotification, env.Event)
	}

	var payload map[string]any
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	if payload["title"] != "hello" {
		t.Errorf("unexpected payload: %v", payload)
	}
}

func TestHub_RoomIsolation(t *testing.T) {
	hub, srv := setupTestHub(t, allowAll, Config{})
	alice, bob := uuid.New(), uuid.New()

	wsAlice := dial(t, srv)
	authenticate(t, wsAlice, alice)
	wsBob := dial(t, srv)
	authenticate(t, wsBob, bob)

	waitForRoomSize(t, hub, alice, 1)
	waitForRoomSize(t, hub, bob, 1)

	if err := hub.EmitToRecipient(alice, EventNewNotification, map[string]any{"n": 1}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	env := readEnvelope(t, wsAlice)
	if env.Event != EventNewNotification {
		t.Fatalf("alice should receive her event, got %q", env.Event)
	}

	// Bob must see nothing.
	wsBob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := wsBob.ReadMessage(); err == nil {
		t.Fatal("event leaked into another recipient's room")
	}
}

func TestHub_MultipleConnectionsFanOut(t *testing.T) {
	hub, srv := setupTestHub(t, allowAll, Config{})
	recipientID := uuid.New()

	first := dial(t, srv)
	authenticate(t, first, recipientID)
	second := dial(t, srv)
	authenticate(t, second, recipientID)

	waitForRoomSize(t, hub, recipientID, 2)

	if err := hub.EmitToRecipient(recipientID, EventUnreadCountUpdate, map[string]any{"count": 3}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	for _, ws := range []*websocket.Conn{first, second} {
		env := readEnvelope(t, ws)
		if env.Event != EventUnreadCountUpdate {
			t.Fatalf("expected %s on every connection, got %s", EventUnreadCountUpdate, env.Event)
		}
	}
}

func TestHub_EmptyRoomIsNoOp(t *testing.T) {
	hub, _ := setupTestHub(t, allowAll, Config{})

	if err := hub.EmitToRecipient(uuid.New(), EventNewNotification, map[string]any{"n": 1}); err != nil {
		t.Fatalf("emitting to an empty room should succeed silently: %v", err)
	}
}

func TestHub_RejectedAuth(t *testing.T) {
	deny := func(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error {
		return errors.New("bad token")
	}
	hub, srv := setupTestHub(t, deny, Config{})
	recipientID := uuid.New()

	ws := dial(t, srv)
	payload, _ := json.Marshal(AuthRequest{RecipientID: recipientID.String(), Token: "nope"})
	if err := ws.WriteJSON(Envelope{Event: "authenticate", Payload: payload}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The server closes without ever sending an authenticated ack.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}

	if hub.RoomSize(recipientID) != 0 {
		t.Error("rejected connection must not join a room")
	}
}

func TestHub_FirstFrameMustAuthenticate(t *testing.T) {
	hub, srv := setupTestHub(t, allowAll, Config{})
	recipientID := uuid.New()

	ws := dial(t, srv)
	if err := ws.WriteJSON(Envelope{Event: "subscribe"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}

	if hub.RoomSize(recipientID) != 0 {
		t.Error("unauthenticated connection must not join a room")
	}
}

func TestHub_AuthTimeout(t *testing.T) {
	_, srv := setupTestHub(t, allowAll, Config{AuthTimeout: 100 * time.Millisecond})

	ws := dial(t, srv)

	// Say nothing; the server should hang up once the handshake deadline
	// passes.
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	start := time.Now()
	if _, _, err := ws.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed")
	}
	if time.Since(start) > time.Second {
		t.Error("connection not dropped promptly after auth timeout")
	}
}

func TestHub_AuthenticatorGetsLiveContext(t *testing.T) {
	// The HTTP handler returns as soon as the connection goroutine is
	// spawned; an authenticator doing I/O must still see a usable context.
	auth := func(ctx context.Context, recipientID uuid.UUID, recipientKind, token string) error {
		return ctx.Err()
	}
	hub, srv := setupTestHub(t, auth, Config{})
	recipientID := uuid.New()

	ws := dial(t, srv)
	// Give the handler time to return before authenticating.
	time.Sleep(50 * time.Millisecond)

	authenticate(t, ws, recipientID)
	waitForRoomSize(t, hub, recipientID, 1)
}

func TestConnection_CloseStopsWritePump(t *testing.T) {
	hub := NewHub(allowAll, Config{}, zap.NewNop())

	serverConns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := hub.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverConns <- ws
	}))
	t.Cleanup(srv.Close)

	dial(t, srv)
	serverWS := <-serverConns

	c := &connection{
		ws:   serverWS,
		send: make(chan []byte, 1),
		done: make(chan struct{}),
		hub:  hub,
	}

	exited := make(chan struct{})
	go func() {
		c.writePump()
		close(exited)
	}()

	c.close()

	// The pump must exit on close, not wait out the ping interval.
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump still running after close")
	}
}

func TestHub_LeaveOnDisconnect(t *testing.T) {
	hub, srv := setupTestHub(t, allowAll, Config{})
	recipientID := uuid.New()

	ws := dial(t, srv)
	authenticate(t, ws, recipientID)
	waitForRoomSize(t, hub, recipientID, 1)

	ws.Close()
	waitForRoomSize(t, hub, recipientID, 0)
}
