package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/remindr/internal/deletion"
	"github.com/dukerupert/remindr/internal/recurrence"
	"github.com/dukerupert/remindr/internal/reminder"
	"github.com/dukerupert/remindr/internal/store"
)

const maxBodyBytes = 1 << 20

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case reminder.IsValidation(err), errors.Is(err, deletion.ErrInvalidScope):
		return http.StatusBadRequest
	case errors.Is(err, reminder.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, deletion.ErrAlreadyOccurred), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, deletion.ErrNoOccurrence), errors.Is(err, recurrence.ErrInvalidPattern):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// serviceError writes err as a JSON error body, logging only unexpected failures.
func serviceError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
