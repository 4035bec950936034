package twiliowhatsapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/BTreeMap/IsItStolen/internal/models"
	twilioClient "github.com/twilio/twilio-go/client"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "+447700900123", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Error("expected error without from number")
	}

	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q, want whatsapp: prefix", c.fromWhats)
	}
}

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		rateLimited bool
	}{
		{"http 429", &twilioClient.TwilioRestError{Status: http.StatusTooManyRequests, Message: "Too Many Requests"}, true},
		{"code 20429", fmt.Errorf("create message: %w", &twilioClient.TwilioRestError{Status: http.StatusBadRequest, Code: 20429}), true},
		{"invalid number", &twilioClient.TwilioRestError{Status: http.StatusBadRequest, Code: 21211}, false},
		{"network", errors.New("dial tcp: timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifySendError(tt.err)
			if !errors.Is(err, models.ErrTransport) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if got := errors.Is(err, models.ErrTransportRateLimited); got != tt.rateLimited {
				t.Errorf("rate limited = %v, want %v", got, tt.rateLimited)
			}
		})
	}
}
