package model

import "time"

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Delivery records one fired occurrence and the outcome of handing it to the
// user-facing channel.
type Delivery struct {
	ID           string         `json:"id"`
	ReminderID   int64          `json:"reminder_id"`
	OccurrenceAt time.Time      `json:"occurrence_at"`
	Status       DeliveryStatus `json:"status"`
	Attempts     int            `json:"attempts"`
	LastError    string         `json:"last_error"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
