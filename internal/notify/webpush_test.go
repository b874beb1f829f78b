package notify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/remindr/internal/model"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	// Uncompressed P-256 point.
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func testSubscription(t *testing.T, endpoint string) *model.PushSubscription {
	t.Helper()
	// Any valid P-256 public key works as the browser's key.
	p256dh, _, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	auth := make([]byte, 16)
	rand.Read(auth)
	return &model.PushSubscription{
		ChannelID: "chat-1",
		Endpoint:  endpoint,
		P256dhKey: p256dh,
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
	}
}

func TestPushServiceSend(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
		fail    bool
	}{
		{"created", http.StatusCreated, nil, false},
		{"gone", http.StatusGone, ErrExpired, true},
		{"server error", http.StatusInternalServerError, nil, true},
	}

	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}
	svc := NewPushService(pub, priv, "mailto:reminders@example.com")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotAuth string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := svc.Send(context.Background(), testSubscription(t, srv.URL), Payload{Title: "Stretch", Body: "now"})
			if tt.fail != (err != nil) {
				t.Fatalf("Send error = %v, want failure %v", err, tt.fail)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Send error = %v, want %v", err, tt.wantErr)
			}
			if gotAuth == "" {
				t.Error("request carried no VAPID authorization")
			}
		})
	}

	if svc.VAPIDPublicKey() != pub {
		t.Error("VAPIDPublicKey mismatch")
	}
}
