package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/service"
)

// DeviceHandler handles push-token device registration endpoints.
type DeviceHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewDeviceHandler(svc *service.NotificationService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{svc: svc, logger: logger}
}

// Register handles POST /api/v1/devices
//
// @Summary  Register a push device token
// @Tags     devices
// @Accept   json
// @Produce  json
// @Param    body  body      domain.RegisterDeviceRequest  true  "Device registration payload"
// @Success  201   {object}  domain.DeviceRegistration
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/devices [post]
func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	d, err := h.svc.RegisterDevice(r.Context(), req)
	if err != nil {
		h.logger.Warn("register device failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

// Deactivate handles DELETE /api/v1/users/{userID}/devices/{deviceID}
//
// @Summary  Deactivate a device registration
// @Tags     devices
// @Param    userID    path  string  true  "Recipient user ID"
// @Param    deviceID  path  string  true  "Device registration ID"
// @Success  204
// @Failure  404  {object}  map[string]string
// @Router   /api/v1/users/{userID}/devices/{deviceID} [delete]
func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.svc.DeactivateDevice(r.Context(), userID, deviceID); err != nil {
		mapError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /api/v1/users/{userID}/devices
//
// @Summary  List a recipient's registered devices
// @Tags     devices
// @Produce  json
// @Param    userID  path  string  true  "Recipient user ID"
// @Success  200     {object}  []domain.DeviceRegistration
// @Router   /api/v1/users/{userID}/devices [get]
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	devices, err := h.svc.ListUserDevices(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, devices)
}
