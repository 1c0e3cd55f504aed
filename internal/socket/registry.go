package socket

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/config"
)

// AuthFunc validates an auth frame's token and returns the authenticated
// user id, or an error if the token doesn't check out. Fixed per the wire
// protocol: anything other than this exact frame shape is an error.
type AuthFunc func(token string) (userID string, err error)

// Registry owns every live connection and the by-user index used to fan
// a notification out to all of a recipient's open sockets. The by-user
// index is guarded by a single registry-wide RWMutex whose critical
// section is O(1) per operation; connection state itself (subscriptions,
// auth) is guarded per-connection, never under the registry lock.
type Registry struct {
	cfg      config.SocketConfig
	upgrader websocket.Upgrader
	authFn   AuthFunc
	log      *zap.Logger

	mu      sync.RWMutex
	conns   map[string]*Connection   // by connection id
	byUser  map[string]map[string]*Connection // user id -> connection id -> conn

	onFrameSent func(kind string)
}

func NewRegistry(cfg config.SocketConfig, authFn AuthFunc, log *zap.Logger, onFrameSent func(string)) *Registry {
	return &Registry{
		cfg:    cfg,
		authFn: authFn,
		log:    log,
		conns:  make(map[string]*Connection),
		byUser: make(map[string]map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		onFrameSent: onFrameSent,
	}
}

// Count reports the number of live connections, used to enforce the
// capacity cap before upgrading a new request.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Upgrade accepts a new inbound connection, enforcing the capacity cap
// before upgrading. The connection starts unauthenticated: subscribe and
// unsubscribe frames are refused until it sends a successful auth frame;
// ping and pong frames are handled either way.
func (r *Registry) Upgrade(w http.ResponseWriter, req *http.Request) error {
	if r.cfg.MaxConnections > 0 && r.Count() >= r.cfg.MaxConnections {
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return nil
	}

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return err
	}

	id := uuid.NewString()
	c := newConnection(id, "", conn, r.log, func(reason string) { r.remove(id) })

	r.mu.Lock()
	r.conns[id] = c
	r.mu.Unlock()

	go c.writePump(r.cfg.PingInterval, r.cfg.WriteTimeout)
	go c.readPump(r.cfg.PongTimeout, r.dispatch)

	return nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return
	}
	delete(r.conns, id)
	if c.UserID != "" {
		if m, ok := r.byUser[c.UserID]; ok {
			delete(m, id)
			if len(m) == 0 {
				delete(r.byUser, c.UserID)
			}
		}
	}
}

func (r *Registry) dispatch(c *Connection, f Frame) {
	switch f.Type {
	case FrameAuth:
		r.handleAuth(c, f)
	case FrameSubscribe:
		if !c.isAuthenticated() {
			c.Send(Frame{Type: FrameError, Reason: "unauthenticated"})
			return
		}
		c.subscribe(f.Types)
	case FrameUnsubscribe:
		if !c.isAuthenticated() {
			c.Send(Frame{Type: FrameError, Reason: "unauthenticated"})
			return
		}
		c.unsubscribe(f.Types)
	case FramePing:
		c.Send(Frame{Type: FramePong, Nonce: f.Nonce})
		r.countFrame(FramePong)
	case FramePong:
		c.touch()
	default:
		c.Send(Frame{Type: FrameError, Reason: "unknown_frame_type"})
	}
}

func (r *Registry) handleAuth(c *Connection, f Frame) {
	userID, err := r.authFn(f.Token)
	if err != nil {
		c.Send(Frame{Type: FrameAuthAck, OK: false, Reason: "auth_failed"})
		r.countFrame(FrameAuthAck)
		c.closeWith(CloseAuthFailed)
		return
	}

	c.UserID = userID
	c.setAuthenticated(true)
	if len(f.Subscriptions) > 0 {
		c.subscribe(f.Subscriptions)
	}

	r.mu.Lock()
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*Connection)
	}
	r.byUser[userID][c.ID] = c
	r.mu.Unlock()

	c.Send(Frame{Type: FrameAuthAck, OK: true})
	r.countFrame(FrameAuthAck)
}

func (r *Registry) countFrame(kind string) {
	if r.onFrameSent != nil {
		r.onFrameSent(kind)
	}
}

// SendToUser fans a notification frame out to every live, subscribed
// connection for userID. Returns the number of connections it was
// delivered to; zero means the user has no live socket right now.
func (r *Registry) SendToUser(userID string, f Frame) int {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if !c.wantsType(f.NotifType) {
			continue
		}
		if c.Send(f) {
			delivered++
			r.countFrame(FrameNotification)
		}
	}
	return delivered
}

// SweepIdle closes connections that have been silent past idleTimeout,
// for liveness hygiene beyond the read deadline's pong-based check.
func (r *Registry) SweepIdle(now time.Time, idleTimeout time.Duration) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		if c.idleSince(now) > idleTimeout {
			c.closeWith(CloseExpired)
		}
	}
}

// CloseAll closes every live connection with the given reason, used by
// the orchestrator's graceful-shutdown sequence.
func (r *Registry) CloseAll(reason string) {
	r.mu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.RUnlock()

	for _, c := range conns {
		c.closeWith(reason)
	}
}
