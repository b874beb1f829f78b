package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/store"
)

type PushHandler struct {
	pushStore *store.PushStore
	publicKey string
	logger    *slog.Logger
}

// NewPushHandler serves subscription management. An empty publicKey means
// web push is disabled.
func NewPushHandler(ps *store.PushStore, publicKey string, logger *slog.Logger) *PushHandler {
	return &PushHandler{pushStore: ps, publicKey: publicKey, logger: logger}
}

type subscribeRequest struct {
	ChannelID  string `json:"channel_id"`
	Endpoint   string `json:"endpoint"`
	P256dh     string `json:"p256dh"`
	Auth       string `json:"auth"`
	DeviceName string `json:"device_name"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

// VAPIDKey handles GET /api/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.publicKey == "" {
		writeError(w, http.StatusServiceUnavailable, "push notifications not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"public_key": h.publicKey})
}

// Subscribe handles POST /api/push/subscriptions
func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.ChannelID == "" || req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		writeError(w, http.StatusBadRequest, "channel_id, endpoint, p256dh, and auth are required")
		return
	}

	sub, err := h.pushStore.CreateSubscription(r.Context(), req.ChannelID, req.Endpoint, req.P256dh, req.Auth, req.DeviceName)
	if err != nil {
		h.logger.Error("create push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save subscription")
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// Unsubscribe handles DELETE /api/push/subscriptions
func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "endpoint is required")
		return
	}

	if err := h.pushStore.DeleteByEndpoint(r.Context(), req.Endpoint); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete subscription")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubscriptions handles GET /api/push/subscriptions?channel_id=
func (h *PushHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel_id is required")
		return
	}

	subs, err := h.pushStore.ListByChannel(r.Context(), channelID)
	if err != nil {
		h.logger.Error("list push subscriptions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}
	if subs == nil {
		subs = []model.PushSubscription{}
	}
	writeJSON(w, http.StatusOK, subs)
}
