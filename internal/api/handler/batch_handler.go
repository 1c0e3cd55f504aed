package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/service"
)

// BatchHandler handles the admission-time batch endpoint: creating many
// notifications in a single request. It has nothing to do with the
// digest batches the batching engine assembles later at flush time.
type BatchHandler struct {
	svc    *service.NotificationService
	logger *zap.Logger
}

func NewBatchHandler(svc *service.NotificationService, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{svc: svc, logger: logger}
}

// CreateBatch handles POST /api/v1/notifications/batch
//
// @Summary  Create up to 1000 notifications in a single request
// @Tags     batches
// @Accept   json
// @Produce  json
// @Param    body  body      domain.CreateBatchRequest  true  "Batch payload"
// @Success  201   {object}  []domain.Notification
// @Failure  422   {object}  map[string]string
// @Router   /api/v1/notifications/batch [post]
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	notifications, err := h.svc.CreateBatch(r.Context(), req.Notifications)
	if err != nil {
		h.logger.Warn("create batch failed", zap.Error(err))
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, notifications)
}

// FlushUser handles POST /api/v1/users/{userID}/batches/flush
//
// @Summary  Flush a recipient's open digest batches right away
// @Tags     batches
// @Param    userID  path      string  true  "Recipient user ID"
// @Success  200     {object}  map[string]int
// @Router   /api/v1/users/{userID}/batches/flush [post]
func (h *BatchHandler) FlushUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	flushed, err := h.svc.FlushUserBatches(r.Context(), userID)
	if err != nil {
		h.logger.Warn("flush user batches failed", zap.String("user_id", userID), zap.Error(err))
		mapError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{"flushed": flushed})
}
