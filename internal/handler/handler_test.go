package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/remindr/internal/database"
	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/reminder"
	"github.com/dukerupert/remindr/internal/store"
)

var testNow = time.Date(2026, 2, 4, 12, 0, 0, 0, time.UTC)

func setupMux(t *testing.T) *http.ServeMux {
	t.Helper()
	mux, _ := setupMuxDB(t)
	return mux
}

func setupMuxDB(t *testing.T) (*http.ServeMux, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := reminder.NewService(store.NewReminderStore(db), "UTC", logger)
	svc.SetClock(func() time.Time { return testNow })

	rh := NewReminderHandler(svc, logger)
	ph := NewPushHandler(store.NewPushStore(db), "test-public-key", logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/reminders", rh.Create)
	mux.HandleFunc("GET /api/reminders", rh.List)
	mux.HandleFunc("POST /api/reminders/match", rh.Match)
	mux.HandleFunc("POST /api/reminders/delete-by-description", rh.DeleteByDescription)
	mux.HandleFunc("GET /api/reminders/{id}", rh.Get)
	mux.HandleFunc("GET /api/reminders/{id}/upcoming", rh.Upcoming)
	mux.HandleFunc("DELETE /api/reminders/{id}", rh.Delete)
	mux.HandleFunc("POST /api/reminders/{id}/pause", rh.Pause)
	mux.HandleFunc("POST /api/reminders/{id}/resume", rh.Resume)
	mux.HandleFunc("GET /api/push/vapid-key", ph.VAPIDKey)
	mux.HandleFunc("GET /api/push/subscriptions", ph.ListSubscriptions)
	mux.HandleFunc("POST /api/push/subscriptions", ph.Subscribe)
	mux.HandleFunc("DELETE /api/push/subscriptions", ph.Unsubscribe)
	return mux, db
}

func do(t *testing.T, mux http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, r)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func createDaily(t *testing.T, mux http.Handler, title string) model.Reminder {
	t.Helper()
	rec := do(t, mux, "POST", "/api/reminders", reminder.CreateParams{
		OwnerID:     "alice",
		Title:       title,
		Type:        "daily",
		ScheduledAt: "2026-02-04",
		Pattern:     model.RecurrencePattern{TimeOfDay: "11:00"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	return decode[model.Reminder](t, rec)
}

func TestCreateAndGetReminder(t *testing.T) {
	mux := setupMux(t)
	created := createDaily(t, mux, "Stretch")

	if want := time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC); created.NextExecution == nil || !created.NextExecution.Equal(want) {
		t.Errorf("next_execution = %v, want %v", created.NextExecution, want)
	}

	rec := do(t, mux, "GET", "/api/reminders/"+itoa(created.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if got := decode[model.Reminder](t, rec); got.Title != "Stretch" || got.Version != created.Version {
		t.Errorf("got %+v", got)
	}

	list := do(t, mux, "GET", "/api/reminders?owner_id=alice", nil)
	if reminders := decode[[]model.Reminder](t, list); len(reminders) != 1 {
		t.Errorf("list len = %d, want 1", len(reminders))
	}
}

func TestCreateValidationError(t *testing.T) {
	mux := setupMux(t)
	rec := do(t, mux, "POST", "/api/reminders", reminder.CreateParams{OwnerID: "alice", Type: "daily", ScheduledAt: "2026-02-04"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decode[map[string]string](t, rec); !strings.Contains(body["error"], "title") {
		t.Errorf("error = %q", body["error"])
	}

	bad := httptest.NewRequest("POST", "/api/reminders", strings.NewReader("{"))
	brec := httptest.NewRecorder()
	mux.ServeHTTP(brec, bad)
	if brec.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON status = %d, want 400", brec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	mux := setupMux(t)
	tests := []struct {
		name   string
		method string
		target string
		want   int
	}{
		{"list without owner", "GET", "/api/reminders", http.StatusBadRequest},
		{"list bad active", "GET", "/api/reminders?owner_id=alice&active=maybe", http.StatusBadRequest},
		{"bad id", "GET", "/api/reminders/abc", http.StatusBadRequest},
		{"missing reminder", "GET", "/api/reminders/42", http.StatusNotFound},
		{"delete missing", "DELETE", "/api/reminders/42", http.StatusNotFound},
		{"pause missing", "POST", "/api/reminders/42/pause", http.StatusNotFound},
		{"upcoming bad n", "GET", "/api/reminders/1/upcoming?n=x", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, mux, tt.method, tt.target, nil); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestDeleteSingleOccurrence(t *testing.T) {
	mux := setupMux(t)
	r := createDaily(t, mux, "Stretch")

	rec := do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=single", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Success      bool            `json:"success"`
		DeletionType model.ScopeType `json:"deletion_type"`
		Message      string          `json:"message"`
		Reminder     *model.Reminder `json:"reminder"`
	}](t, rec)
	if !body.Success || body.DeletionType != model.ScopeSingle || body.Message == "" {
		t.Errorf("body = %+v", body)
	}
	if want := time.Date(2026, 2, 6, 11, 0, 0, 0, time.UTC); body.Reminder == nil || !body.Reminder.NextExecution.Equal(want) {
		t.Errorf("reminder after delete = %+v, want next %v", body.Reminder, want)
	}
}

func TestDeletePastOccurrenceConflicts(t *testing.T) {
	mux := setupMux(t)
	r := createDaily(t, mux, "Stretch")

	rec := do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=single&date=2026-02-03", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (%s)", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["success"] != false || body["message"] == "" {
		t.Errorf("body = %v", body)
	}
}

func TestDeleteOffScheduleDay(t *testing.T) {
	mux := setupMux(t)
	rec := do(t, mux, "POST", "/api/reminders", reminder.CreateParams{
		OwnerID:     "alice",
		Title:       "Take medicine",
		Type:        "weekly",
		ScheduledAt: "2026-02-09",
		Pattern:     model.RecurrencePattern{TimeOfDay: "09:00", DaysOfWeek: []int{1}},
	})
	r := decode[model.Reminder](t, rec)

	rec = do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=single&date=2026-02-10", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (%s)", rec.Code, rec.Body.String())
	}
	body := decode[map[string]any](t, rec)
	if body["success"] != false || !strings.Contains(body["message"].(string), "doesn't occur") {
		t.Errorf("body = %v", body)
	}

	got := decode[model.Reminder](t, do(t, mux, "GET", "/api/reminders/"+itoa(r.ID), nil))
	if len(got.Pattern.ExclusionDates) != 0 || got.Version != r.Version {
		t.Errorf("reminder changed: %+v", got)
	}
}

func TestDeleteMalformedPatternIsUnprocessable(t *testing.T) {
	mux, db := setupMuxDB(t)
	next := time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC)
	r, err := store.NewReminderStore(db).Create(context.Background(), &model.Reminder{
		OwnerID:       "alice",
		ChannelID:     "alice",
		Title:         "Broken",
		Type:          model.TypeDaily,
		Status:        model.StatusActive,
		ScheduledAt:   next,
		NextExecution: &next,
		Pattern:       model.RecurrencePattern{Interval: 1, TimeOfDay: "25:99", Timezone: "UTC"},
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	rec := do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=single&date=2026-02-06", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422 (%s)", rec.Code, rec.Body.String())
	}
	if body := decode[map[string]any](t, rec); body["error"] == "internal error" || body["error"] == "" {
		t.Errorf("body = %v, want the pattern error", body)
	}
}

func TestDeleteSeries(t *testing.T) {
	mux := setupMux(t)
	r := createDaily(t, mux, "Stretch")

	if rec := do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=series", nil); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec := do(t, mux, "GET", "/api/reminders/"+itoa(r.ID), nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", rec.Code)
	}
	if rec := do(t, mux, "DELETE", "/api/reminders/"+itoa(r.ID)+"?scope=weekly", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown scope = %d, want 400", rec.Code)
	}
}

func TestPauseResumeAndUpcoming(t *testing.T) {
	mux := setupMux(t)
	r := createDaily(t, mux, "Stretch")
	id := itoa(r.ID)

	rec := do(t, mux, "POST", "/api/reminders/"+id+"/pause", nil)
	if got := decode[model.Reminder](t, rec); got.Status != model.StatusPaused {
		t.Errorf("status after pause = %q", got.Status)
	}
	rec = do(t, mux, "POST", "/api/reminders/"+id+"/resume", nil)
	if got := decode[model.Reminder](t, rec); got.Status != model.StatusActive {
		t.Errorf("status after resume = %q", got.Status)
	}

	rec = do(t, mux, "GET", "/api/reminders/"+id+"/upcoming?n=3", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upcoming status = %d (%s)", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Occurrences []time.Time `json:"occurrences"`
	}](t, rec)
	if len(body.Occurrences) != 3 || !body.Occurrences[0].Equal(time.Date(2026, 2, 5, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("occurrences = %v", body.Occurrences)
	}
}

func TestMatchAndDeleteByDescription(t *testing.T) {
	mux := setupMux(t)
	createDaily(t, mux, "Water the plants")
	createDaily(t, mux, "Call mom")

	rec := do(t, mux, "POST", "/api/reminders/match", reminder.MatchCriteria{OwnerID: "alice", Description: "water the plants"})
	if rec.Code != http.StatusOK {
		t.Fatalf("match status = %d (%s)", rec.Code, rec.Body.String())
	}
	matches := decode[struct {
		Matches []reminder.RankedMatch `json:"matches"`
	}](t, rec).Matches
	if len(matches) == 0 || matches[0].Reminder.Title != "Water the plants" {
		t.Fatalf("matches = %+v", matches)
	}

	rec = do(t, mux, "POST", "/api/reminders/delete-by-description", reminder.MatchCriteria{
		OwnerID:       "alice",
		Description:   "water the plants",
		DeletionScope: "series",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("delete-by-description status = %d (%s)", rec.Code, rec.Body.String())
	}
	if body := decode[map[string]any](t, rec); body["success"] != true {
		t.Errorf("body = %v", body)
	}

	rec = do(t, mux, "POST", "/api/reminders/delete-by-description", reminder.MatchCriteria{OwnerID: "alice", Description: "feed the cat"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("no match status = %d, want 404", rec.Code)
	}
}

func TestPushSubscriptions(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, "GET", "/api/push/vapid-key", nil)
	if body := decode[map[string]string](t, rec); body["public_key"] != "test-public-key" {
		t.Errorf("vapid key = %v", body)
	}

	sub := subscribeRequest{ChannelID: "alice-phone", Endpoint: "https://push.example/abc", P256dh: "p", Auth: "a"}
	if rec := do(t, mux, "POST", "/api/push/subscriptions", sub); rec.Code != http.StatusCreated {
		t.Fatalf("subscribe status = %d (%s)", rec.Code, rec.Body.String())
	}
	if rec := do(t, mux, "POST", "/api/push/subscriptions", subscribeRequest{Endpoint: "x"}); rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete subscribe = %d, want 400", rec.Code)
	}

	rec = do(t, mux, "GET", "/api/push/subscriptions?channel_id=alice-phone", nil)
	if subs := decode[[]model.PushSubscription](t, rec); len(subs) != 1 {
		t.Fatalf("subscriptions = %d, want 1", len(subs))
	}

	if rec := do(t, mux, "DELETE", "/api/push/subscriptions", unsubscribeRequest{Endpoint: sub.Endpoint}); rec.Code != http.StatusNoContent {
		t.Errorf("unsubscribe status = %d", rec.Code)
	}
	rec = do(t, mux, "GET", "/api/push/subscriptions?channel_id=alice-phone", nil)
	if subs := decode[[]model.PushSubscription](t, rec); len(subs) != 0 {
		t.Errorf("subscriptions after delete = %d, want 0", len(subs))
	}
}

func TestVAPIDKeyDisabled(t *testing.T) {
	h := NewPushHandler(nil, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := httptest.NewRecorder()
	h.VAPIDKey(rec, httptest.NewRequest("GET", "/api/push/vapid-key", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
