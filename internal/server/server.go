package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/remindr/internal/handler"
	"github.com/dukerupert/remindr/internal/middleware"
	"github.com/dukerupert/remindr/internal/reminder"
	"github.com/dukerupert/remindr/internal/store"
	ws "github.com/dukerupert/remindr/internal/websocket"
)

// Natural-language matching is the expensive path; cap it per client.
const (
	matchRateLimit  = 30
	matchRatePeriod = time.Minute
)

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	reminderH   *handler.ReminderHandler
	pushH       *handler.PushHandler
	rateLimiter *middleware.RateLimiter
	logger      *slog.Logger
}

// New wires the HTTP surface. vapidPublicKey is empty when web push is off.
func New(db *sql.DB, hub *ws.Hub, svc *reminder.Service, pushStore *store.PushStore, vapidPublicKey string, logger *slog.Logger) *Server {
	httpLogger := logger.With("component", "http")
	return &Server{
		db:          db,
		hub:         hub,
		reminderH:   handler.NewReminderHandler(svc, httpLogger),
		pushH:       handler.NewPushHandler(pushStore, vapidPublicKey, httpLogger),
		rateLimiter: middleware.NewRateLimiter(matchRateLimit, matchRatePeriod),
		logger:      logger,
	}
}

// RunCleanup evicts stale rate limit windows until ctx is done.
func (s *Server) RunCleanup(ctx context.Context) {
	s.rateLimiter.RunCleanup(ctx)
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))

	mux.HandleFunc("POST /api/reminders", s.reminderH.Create)
	mux.HandleFunc("GET /api/reminders", s.reminderH.List)
	mux.HandleFunc("POST /api/reminders/match", s.rateLimited(s.reminderH.Match))
	mux.HandleFunc("POST /api/reminders/delete-by-description", s.rateLimited(s.reminderH.DeleteByDescription))
	mux.HandleFunc("GET /api/reminders/{id}", s.reminderH.Get)
	mux.HandleFunc("GET /api/reminders/{id}/upcoming", s.reminderH.Upcoming)
	mux.HandleFunc("DELETE /api/reminders/{id}", s.reminderH.Delete)
	mux.HandleFunc("POST /api/reminders/{id}/pause", s.reminderH.Pause)
	mux.HandleFunc("POST /api/reminders/{id}/resume", s.reminderH.Resume)

	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
	mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	return middleware.RateLimit(s.rateLimiter, middleware.RealIP)(h).ServeHTTP
}
