package model

import "time"

// PushSubscription is a web push endpoint registered for a delivery channel.
type PushSubscription struct {
	ID         int64     `json:"id"`
	ChannelID  string    `json:"channel_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
