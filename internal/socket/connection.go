package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Connection owns one live websocket and the goroutines that read and
// write to it. Each connection is driven by exactly one reader goroutine
// (readPump) and one writer goroutine (writePump); all other code talks
// to it only through Send and Close, never touching the underlying
// *websocket.Conn directly, so no two goroutines ever write concurrently
// to the same socket (gorilla/websocket forbids concurrent writers).
type Connection struct {
	ID     string
	UserID string

	conn   *websocket.Conn
	send   chan Frame
	closed chan struct{}
	once   sync.Once

	authenticated bool
	subscriptions map[string]struct{}
	mu            sync.RWMutex

	lastActivity time.Time
	activityMu   sync.Mutex

	log *zap.Logger

	onClose func(reason string)
}

func newConnection(id, userID string, conn *websocket.Conn, log *zap.Logger, onClose func(string)) *Connection {
	return &Connection{
		ID:            id,
		UserID:        userID,
		conn:          conn,
		send:          make(chan Frame, 64),
		closed:        make(chan struct{}),
		subscriptions: make(map[string]struct{}),
		lastActivity:  time.Now(),
		log:           log,
		onClose:       onClose,
	}
}

// Send enqueues a frame for the write pump. It never blocks: a full
// buffer means a slow consumer, and the connection is torn down rather
// than letting one slow client back-pressure the whole fanout.
func (c *Connection) Send(f Frame) bool {
	select {
	case c.send <- f:
		return true
	default:
		c.closeWith(CloseSlowConsumer)
		return false
	}
}

func (c *Connection) touch() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}

func (c *Connection) idleSince(now time.Time) time.Duration {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return now.Sub(c.lastActivity)
}

func (c *Connection) setAuthenticated(v bool) {
	c.mu.Lock()
	c.authenticated = v
	c.mu.Unlock()
}

func (c *Connection) isAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

func (c *Connection) subscribe(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		c.subscriptions[t] = struct{}{}
	}
}

func (c *Connection) unsubscribe(types []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		delete(c.subscriptions, t)
	}
}

func (c *Connection) wantsType(t string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subscriptions) == 0 {
		return true // no explicit filter: subscribed to everything
	}
	_, ok := c.subscriptions[t]
	return ok
}

func (c *Connection) closeWith(reason string) {
	c.once.Do(func() {
		close(c.closed)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(reason)
		}
	})
}

// readPump decodes inbound frames and hands them to the registry's
// dispatch function until the connection errors or closes. It owns the
// read side exclusively, satisfying gorilla/websocket's one-reader rule.
func (c *Connection) readPump(pongTimeout time.Duration, dispatch func(*Connection, Frame)) {
	defer c.closeWith(CloseNormal)

	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.touch()

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.Send(Frame{Type: FrameError, Reason: "malformed_frame"})
			continue
		}
		dispatch(c, f)
	}
}

// writePump serializes every outbound frame and ping onto the one
// goroutine permitted to call conn.WriteMessage.
func (c *Connection) writePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.closeWith(CloseNormal)

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
