package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/service"
)

// PreferencesHandler handles a recipient's notification preferences.
type PreferencesHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewPreferencesHandler(svc *service.NotificationService, logger *zap.Logger) *PreferencesHandler {
	return &PreferencesHandler{svc: svc, logger: logger}
}

// Get handles GET /api/v1/users/{userID}/preferences
//
// @Summary  Get a recipient's preferences, defaulted if never saved
// @Tags     preferences
// @Produce  json
// @Param    userID  path      string  true  "Recipient user ID"
// @Success  200     {object}  domain.Preferences
// @Router   /api/v1/users/{userID}/preferences [get]
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, err := h.svc.GetPreferences(r.Context(), userID)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Update handles PUT /api/v1/users/{userID}/preferences
//
// @Summary  Replace a recipient's preferences
// @Tags     preferences
// @Accept   json
// @Produce  json
// @Param    userID  path  string             true  "Recipient user ID"
// @Param    body    body  domain.Preferences true  "Preferences payload"
// @Success  200     {object}  domain.Preferences
// @Failure  400     {object}  map[string]string
// @Router   /api/v1/users/{userID}/preferences [put]
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var p domain.Preferences
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	p.UserID = userID

	if err := h.svc.UpdatePreferences(r.Context(), &p); err != nil {
		h.logger.Warn("update preferences failed", zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
