package socket_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/config"
	"github.com/notifyhub/notification-engine/internal/socket"
)

func testConfig() config.SocketConfig {
	return config.SocketConfig{
		MaxConnections: 2,
		PingInterval:   50 * time.Millisecond,
		PongTimeout:    200 * time.Millisecond,
		IdleTimeout:    time.Second,
		WriteTimeout:   200 * time.Millisecond,
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestRegistry_AuthSucceeds(t *testing.T) {
	authFn := func(token string) (string, error) {
		if token == "good" {
			return "user-1", nil
		}
		return "", http.ErrNoCookie
	}
	reg := socket.NewRegistry(testConfig(), authFn, zap.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = reg.Upgrade(w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	if err := conn.WriteJSON(socket.Frame{Type: socket.FrameAuth, Token: "good"}); err != nil {
		t.Fatalf("write auth frame: %v", err)
	}

	var ack socket.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != socket.FrameAuthAck || !ack.OK {
		t.Fatalf("expected ok auth_ack, got %+v", ack)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if n := reg.SendToUser("user-1", socket.Frame{Type: socket.FrameNotification, NotifType: "like"}); n == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected notification to be delivered to the authenticated connection")
}

func TestRegistry_AuthFailureClosesConnection(t *testing.T) {
	authFn := func(token string) (string, error) { return "", http.ErrNoCookie }
	reg := socket.NewRegistry(testConfig(), authFn, zap.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = reg.Upgrade(w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	_ = conn.WriteJSON(socket.Frame{Type: socket.FrameAuth, Token: "bad"})

	var ack socket.Frame
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.OK {
		t.Fatal("expected auth_ack with ok=false")
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to be closed after auth failure")
	}
}

func TestRegistry_CapacityCapRejectsUpgrade(t *testing.T) {
	authFn := func(token string) (string, error) { return "user-1", nil }
	cfg := testConfig()
	cfg.MaxConnections = 1
	reg := socket.NewRegistry(cfg, authFn, zap.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = reg.Upgrade(w, r)
	}))
	defer srv.Close()

	first := dial(t, srv)
	defer first.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && reg.Count() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second dial to be rejected at capacity")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", resp)
	}
}

func TestRegistry_AuthSubscriptionsFilterDelivery(t *testing.T) {
	authFn := func(token string) (string, error) { return "user-1", nil }
	reg := socket.NewRegistry(testConfig(), authFn, zap.NewNop(), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = reg.Upgrade(w, r)
	}))
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	_ = conn.WriteJSON(socket.Frame{Type: socket.FrameAuth, Token: "good", Subscriptions: []string{"like"}})
	var ack socket.Frame
	_ = conn.ReadJSON(&ack)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && reg.Count() < 1 {
		time.Sleep(5 * time.Millisecond)
	}

	if n := reg.SendToUser("user-1", socket.Frame{Type: socket.FrameNotification, NotifType: "comment"}); n != 0 {
		t.Fatalf("expected delivery filtered out for unsubscribed type, got %d", n)
	}
	if n := reg.SendToUser("user-1", socket.Frame{Type: socket.FrameNotification, NotifType: "like"}); n != 1 {
		t.Fatalf("expected delivery for subscribed type, got %d", n)
	}
}
