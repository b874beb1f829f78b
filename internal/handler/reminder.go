package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/reminder"
)

const defaultUpcoming = 5

type ReminderHandler struct {
	service *reminder.Service
	logger  *slog.Logger
}

func NewReminderHandler(svc *reminder.Service, logger *slog.Logger) *ReminderHandler {
	return &ReminderHandler{service: svc, logger: logger}
}

// Create handles POST /api/reminders
func (h *ReminderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var p reminder.CreateParams
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	rem, err := h.service.Create(r.Context(), p)
	if err != nil {
		serviceError(w, h.logger, "create reminder", err)
		return
	}
	writeJSON(w, http.StatusCreated, rem)
}

// List handles GET /api/reminders?owner_id=&active=
func (h *ReminderHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	activeOnly := true
	if v := r.URL.Query().Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		activeOnly = b
	}

	reminders, err := h.service.List(r.Context(), ownerID, activeOnly)
	if err != nil {
		serviceError(w, h.logger, "list reminders", err)
		return
	}
	if reminders == nil {
		reminders = []model.Reminder{}
	}
	writeJSON(w, http.StatusOK, reminders)
}

// Get handles GET /api/reminders/{id}
func (h *ReminderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rem, err := h.service.Get(r.Context(), id)
	if err != nil {
		serviceError(w, h.logger, "get reminder", err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// Upcoming handles GET /api/reminders/{id}/upcoming?n=
func (h *ReminderHandler) Upcoming(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	n := defaultUpcoming
	if v := r.URL.Query().Get("n"); v != "" {
		n, err = strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be a number")
			return
		}
	}

	times, err := h.service.Upcoming(r.Context(), id, n)
	if err != nil {
		serviceError(w, h.logger, "list upcoming", err)
		return
	}
	if times == nil {
		times = []time.Time{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reminder_id": id, "occurrences": times})
}

// Delete handles DELETE /api/reminders/{id}?scope=&date=
func (h *ReminderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	q := r.URL.Query()
	res, err := h.service.Delete(r.Context(), id, q.Get("scope"), q.Get("date"))
	if err != nil {
		h.writeDeletionError(w, "delete reminder", res.Message, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Pause handles POST /api/reminders/{id}/pause
func (h *ReminderHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Pause)
}

// Resume handles POST /api/reminders/{id}/resume
func (h *ReminderHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, h.service.Resume)
}

func (h *ReminderHandler) setStatus(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (*model.Reminder, error)) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rem, err := fn(r.Context(), id)
	if err != nil {
		serviceError(w, h.logger, "update reminder status", err)
		return
	}
	writeJSON(w, http.StatusOK, rem)
}

// Match handles POST /api/reminders/match
func (h *ReminderHandler) Match(w http.ResponseWriter, r *http.Request) {
	var c reminder.MatchCriteria
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	matches, err := h.service.Match(r.Context(), c)
	if err != nil {
		serviceError(w, h.logger, "match reminders", err)
		return
	}
	if matches == nil {
		matches = []reminder.RankedMatch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

// DeleteByDescription handles POST /api/reminders/delete-by-description
func (h *ReminderHandler) DeleteByDescription(w http.ResponseWriter, r *http.Request) {
	var c reminder.MatchCriteria
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	res, err := h.service.DeleteByDescription(r.Context(), c)
	if err != nil {
		h.writeDeletionError(w, "delete reminder by description", res.Message, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// writeDeletionError keeps the success/message shape for rejected deletions.
func (h *ReminderHandler) writeDeletionError(w http.ResponseWriter, op, message string, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error(op, "error", err)
		message, detail = "internal error", "internal error"
	}
	if message == "" {
		message = detail
	}
	writeJSON(w, status, map[string]any{"success": false, "message": message, "error": detail})
}
