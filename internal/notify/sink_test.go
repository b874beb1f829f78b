package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/websocket"
)

type fakeSubs struct {
	subs    []model.PushSubscription
	deleted []string
}

func (f *fakeSubs) ListByChannel(_ context.Context, channelID string) ([]model.PushSubscription, error) {
	var out []model.PushSubscription
	for _, s := range f.subs {
		if s.ChannelID == channelID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubs) DeleteByEndpoint(_ context.Context, endpoint string) error {
	f.deleted = append(f.deleted, endpoint)
	return nil
}

type fakeSender struct {
	results map[string]error
	sent    []Payload
}

func (f *fakeSender) Send(_ context.Context, sub *model.PushSubscription, p Payload) error {
	f.sent = append(f.sent, p)
	return f.results[sub.Endpoint]
}

func TestPushSinkRemovesExpiredSubscriptions(t *testing.T) {
	subs := &fakeSubs{subs: []model.PushSubscription{
		{ChannelID: "chat-1", Endpoint: "https://push.example/ok"},
		{ChannelID: "chat-1", Endpoint: "https://push.example/gone"},
		{ChannelID: "chat-2", Endpoint: "https://push.example/other"},
	}}
	sender := &fakeSender{results: map[string]error{"https://push.example/gone": ErrExpired}}
	sink := NewPushSink(sender, subs, testLogger())

	err := sink.Deliver(context.Background(), Notification{ReminderID: 3, ChannelID: "chat-1", Title: "Call mom"})
	if err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("sent %d pushes, want 2", len(sender.sent))
	}
	if len(subs.deleted) != 1 || subs.deleted[0] != "https://push.example/gone" {
		t.Errorf("deleted = %v, want the expired endpoint", subs.deleted)
	}
	if p := sender.sent[0]; p.Title != "Call mom" || p.URL != "/reminders/3" || p.Tag != "reminder-3" {
		t.Errorf("payload = %+v", p)
	}
}

func TestPushSinkReportsSendErrors(t *testing.T) {
	subs := &fakeSubs{subs: []model.PushSubscription{{ChannelID: "chat-1", Endpoint: "https://push.example/down"}}}
	sender := &fakeSender{results: map[string]error{"https://push.example/down": errors.New("push service returned 500")}}
	sink := NewPushSink(sender, subs, testLogger())

	if err := sink.Deliver(context.Background(), Notification{ChannelID: "chat-1"}); err == nil {
		t.Error("expected error from failing subscription")
	}
	if len(subs.deleted) != 0 {
		t.Error("non-expired subscription should be kept")
	}
}

func TestHubSinkStreamsToChannel(t *testing.T) {
	hub := websocket.NewHub(testLogger())
	srv := httptest.NewServer(websocket.HandleWebSocket(hub, testLogger()))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"?channel=chat-1", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()
	for hub.ClientCount("chat-1") == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sink := NewHubSink(hub)
	n := Notification{DeliveryID: "d-1", ReminderID: 9, ChannelID: "chat-1", Title: "Stretch", OccurrenceAt: time.Date(2026, 2, 4, 9, 0, 0, 0, time.UTC)}
	if err := sink.Deliver(ctx, n); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg websocket.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "reminder_fired" || msg.ID != 9 || msg.Extra["delivery_id"] != "d-1" || msg.Extra["occurrence_at"] != "2026-02-04T09:00:00Z" {
		t.Errorf("message = %+v", msg)
	}
}
