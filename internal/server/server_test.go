package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/remindr/internal/database"
	"github.com/dukerupert/remindr/internal/reminder"
	"github.com/dukerupert/remindr/internal/store"
	ws "github.com/dukerupert/remindr/internal/websocket"
)

func setupServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := reminder.NewService(store.NewReminderStore(db), "UTC", logger)
	return New(db, ws.NewHub(logger), svc, store.NewPushStore(db), "", logger)
}

func TestHealth(t *testing.T) {
	router := setupServer(t).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestRoutes(t *testing.T) {
	router := setupServer(t).Router()
	tests := []struct {
		method string
		target string
		want   int
	}{
		{"GET", "/api/reminders?owner_id=alice", http.StatusOK},
		{"GET", "/api/reminders/7", http.StatusNotFound},
		{"PUT", "/api/reminders/7", http.StatusMethodNotAllowed},
		{"GET", "/api/push/vapid-key", http.StatusServiceUnavailable},
		{"GET", "/ws", http.StatusBadRequest},
		{"GET", "/nope", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestMatchIsRateLimited(t *testing.T) {
	router := setupServer(t).Router()
	body := `{"owner_id":"alice","description":"water plants"}`

	for i := 0; i < matchRateLimit; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/reminders/match", strings.NewReader(body)))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d (%s)", i+1, rec.Code, rec.Body.String())
		}
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", "/api/reminders/match", strings.NewReader(body)))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
