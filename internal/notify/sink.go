package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/remindr/internal/model"
	"github.com/dukerupert/remindr/internal/timeutil"
	"github.com/dukerupert/remindr/internal/websocket"
)

// Notification is a fired reminder rendered for a user-facing channel.
type Notification struct {
	DeliveryID   string
	ReminderID   int64
	ChannelID    string
	Title        string
	Body         string
	OccurrenceAt time.Time
}

// NewNotification renders a fired occurrence in the reminder's timezone.
func NewNotification(deliveryID string, r model.Reminder, occurrence time.Time) Notification {
	loc, err := timeutil.LoadLocation(r.Pattern.Timezone)
	if err != nil {
		loc = time.UTC
	}
	body := r.Description
	if body == "" {
		body = "Scheduled for " + timeutil.Format(occurrence, loc)
	}
	return Notification{
		DeliveryID:   deliveryID,
		ReminderID:   r.ID,
		ChannelID:    r.ChannelID,
		Title:        r.Title,
		Body:         body,
		OccurrenceAt: occurrence,
	}
}

// Sink delivers notifications to one kind of user-facing channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// HubSink streams notifications to websocket clients of the delivery channel.
// Having no connected client is not an error.
type HubSink struct {
	hub *websocket.Hub
}

func NewHubSink(hub *websocket.Hub) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Deliver(ctx context.Context, n Notification) error {
	s.hub.BroadcastTo(n.ChannelID, websocket.NewMessage("reminder", "fired", n.ReminderID, map[string]any{
		"delivery_id":   n.DeliveryID,
		"title":         n.Title,
		"body":          n.Body,
		"occurrence_at": n.OccurrenceAt.UTC().Format(time.RFC3339),
	}))
	return nil
}

// SubscriptionStore is the subset of the push store the push sink uses.
type SubscriptionStore interface {
	ListByChannel(ctx context.Context, channelID string) ([]model.PushSubscription, error)
	DeleteByEndpoint(ctx context.Context, endpoint string) error
}

type Sender interface {
	Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error
}

// PushSink sends a web push to every subscription of the delivery channel.
// Expired subscriptions are removed.
type PushSink struct {
	sender Sender
	subs   SubscriptionStore
	logger *slog.Logger
}

func NewPushSink(sender Sender, subs SubscriptionStore, logger *slog.Logger) *PushSink {
	return &PushSink{sender: sender, subs: subs, logger: logger}
}

func (s *PushSink) Name() string { return "webpush" }

func (s *PushSink) Deliver(ctx context.Context, n Notification) error {
	subs, err := s.subs.ListByChannel(ctx, n.ChannelID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}

	payload := Payload{
		Title: n.Title,
		Body:  n.Body,
		URL:   fmt.Sprintf("/reminders/%d", n.ReminderID),
		Tag:   fmt.Sprintf("reminder-%d", n.ReminderID),
	}

	var errs []error
	for _, sub := range subs {
		err := s.sender.Send(ctx, &sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			s.logger.Info("removing expired push subscription", "channel", n.ChannelID, "device", sub.DeviceName)
			if err := s.subs.DeleteByEndpoint(ctx, sub.Endpoint); err != nil {
				s.logger.Warn("delete expired subscription", "error", err)
			}
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
