// Package messaging connects WhatsApp transports to the conversation router.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/conversation"
	"github.com/BTreeMap/IsItStolen/internal/models"
)

// Constants shared by the transport services
const (
	// DefaultChannelBufferSize defines the default buffer size for receipt and response channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned when sending through a stopped service.
var ErrServiceStopped = errors.New("messaging service stopped")

// Service defines a pluggable message delivery abstraction.
// It supports sending messages, and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates a phone number and returns it in
	// E.164 form, e.g. "+447700900123".
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming user messages.
	Responses() <-chan models.Response
}

// canonicalizeRecipient is the recipient validation shared by the WhatsApp transports.
func canonicalizeRecipient(recipient string) (string, error) {
	if strings.TrimSpace(recipient) == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	canonical, err := models.NormalizePhoneNumber(recipient)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", recipient, err)
	}
	return canonical, nil
}

// FormatReply renders a reply as plain text. List options are listed below the text
// unless the text names all of them; button options only when the text names none.
func FormatReply(reply conversation.Reply) string {
	if reply.Interactive == nil || len(reply.Interactive.Options) == 0 {
		return reply.Text
	}
	text := reply.Text
	if text == "" {
		text = reply.Interactive.Body
	}
	lower := strings.ToLower(text)
	named := 0
	for _, opt := range reply.Interactive.Options {
		if strings.Contains(lower, strings.ToLower(opt.Title)) {
			named++
		}
	}
	if named == len(reply.Interactive.Options) ||
		(reply.Interactive.Type == conversation.InteractiveButton && named > 0) {
		return text
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n")
	for _, opt := range reply.Interactive.Options {
		b.WriteString("\n• ")
		b.WriteString(opt.Title)
	}
	return b.String()
}
