package socket

// Frame is the JSON envelope exchanged over the socket connection. Every
// frame, inbound or outbound, carries a "type" discriminator.
type Frame struct {
	Type string `json:"type"`

	// Inbound fields
	Token         string   `json:"token,omitempty"`
	Subscriptions []string `json:"subscriptions,omitempty"`
	Types         []string `json:"types,omitempty"`
	Nonce         string   `json:"nonce,omitempty"`

	// Outbound fields
	OK      bool   `json:"ok,omitempty"`
	Reason  string `json:"reason,omitempty"`
	ID      string `json:"id,omitempty"`
	NotifType string `json:"notif_type,omitempty"`
	Title   string `json:"title,omitempty"`
	Body    string `json:"body,omitempty"`
	Action  string `json:"action,omitempty"`
	Data    map[string]string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Inbound frame type discriminators.
const (
	FrameAuth        = "auth"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
)

// Outbound frame type discriminators.
const (
	FrameAuthAck      = "auth_ack"
	FrameNotification = "notification"
	FrameStatus       = "status"
	FrameError        = "error"
)

// Close codes/reasons, carried in the close frame payload and recorded
// against the connection for observability.
const (
	CloseOverCapacity  = "over_capacity"
	CloseAuthFailed    = "auth_failed"
	CloseExpired       = "expired"
	CloseSlowConsumer  = "slow_consumer"
	CloseServerShutdown = "server_shutdown"
	CloseNormal        = "normal"
)
