package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/socket"
)

// SocketHandler upgrades inbound HTTP connections to the real-time
// notification socket.
type SocketHandler struct {
	registry *socket.Registry
	logger   *zap.Logger
}

func NewSocketHandler(registry *socket.Registry, logger *zap.Logger) *SocketHandler {
	return &SocketHandler{registry: registry, logger: logger}
}

// Upgrade handles GET /ws
//
// @Summary  Upgrade to the real-time notification socket
// @Tags     socket
// @Router   /ws [get]
func (h *SocketHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Upgrade(w, r); err != nil {
		h.logger.Warn("socket upgrade failed", zap.Error(err))
	}
}
