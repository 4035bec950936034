package events

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/google/uuid"
)

// Sender delivers a text message to a phone number. messaging.Service satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Outbox queues a notification for durable delivery. store.OutboxRepo satisfies it.
type Outbox interface {
	EnqueueOutboxMessage(ctx context.Context, phone, kind, body, dedupeKey string) (string, error)
}

// NotificationOption configures a NotificationService.
type NotificationOption func(*NotificationService)

// WithOutbox queues notifications in outbox instead of sending them directly.
func WithOutbox(outbox Outbox) NotificationOption {
	return func(n *NotificationService) { n.outbox = outbox }
}

// NotificationService sends WhatsApp confirmations for domain events.
type NotificationService struct {
	sender Sender
	outbox Outbox
}

// NewNotificationService creates a notification service that sends through sender.
func NewNotificationService(sender Sender, opts ...NotificationOption) *NotificationService {
	n := &NotificationService{sender: sender}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Start subscribes the service to every item event kind on bus.
func (n *NotificationService) Start(bus Bus) {
	bus.Subscribe(models.EventItemReported, n.handle)
	bus.Subscribe(models.EventItemVerified, n.handle)
	bus.Subscribe(models.EventItemRecovered, n.handle)
	bus.Subscribe(models.EventItemDeleted, n.handle)
	bus.Subscribe(models.EventItemUpdated, n.handle)
	slog.Info("NotificationService subscribed to item events")
}

func (n *NotificationService) handle(ctx context.Context, ev models.Event) error {
	body, ok := FormatNotification(ev)
	if !ok {
		return nil
	}
	to := ev.Recipient()
	if to == "" {
		return fmt.Errorf("%s event %s has no recipient", ev.Kind(), ev.ReportID())
	}
	if n.outbox != nil {
		if _, err := n.outbox.EnqueueOutboxMessage(ctx, to, string(ev.Kind()), body, dedupeKey(ev)); err != nil {
			return fmt.Errorf("failed to queue %s confirmation for %s: %w", ev.Kind(), ev.ReportID(), err)
		}
		slog.Debug("Queued event confirmation", "kind", ev.Kind(), "report_id", ev.ReportID())
		return nil
	}
	if err := n.sender.SendMessage(ctx, to, body); err != nil {
		return fmt.Errorf("failed to send %s confirmation for %s: %w", ev.Kind(), ev.ReportID(), err)
	}
	slog.Info("Sent event confirmation", "kind", ev.Kind(), "report_id", ev.ReportID())
	return nil
}

// dedupeKey identifies one event, so that a redelivered event is queued once.
func dedupeKey(ev models.Event) string {
	if m, ok := ev.(interface{ Meta() models.EventMeta }); ok && m.Meta().EventID != uuid.Nil {
		return string(ev.Kind()) + ":" + m.Meta().EventID.String()
	}
	return ""
}

// FormatNotification renders the confirmation text for ev. It reports false for event
// types that produce no notification.
func FormatNotification(ev models.Event) (string, bool) {
	switch e := ev.(type) {
	case models.ItemReported:
		return fmt.Sprintf("✅ Your stolen item has been reported successfully!\n\n"+
			"📋 Report ID: %s\n"+
			"📦 Item: %s\n"+
			"📝 Description: %s\n\n"+
			"We'll notify you if anyone reports finding a matching item.",
			e.ID, titleCase(string(e.Category)), e.Description), true

	case models.ItemVerified:
		return fmt.Sprintf("✅ Your report has been verified!\n\n"+
			"📋 Report ID: %s\n"+
			"🔍 Police Reference: %s\n\n"+
			"Your report is now marked as officially verified.",
			e.ID, e.PoliceReference), true

	case models.ItemRecovered:
		where := "Location provided"
		if e.RecoveryLocation == nil {
			where = "Not provided"
		} else if e.RecoveryLocation.Address != "" {
			where = e.RecoveryLocation.Address
		}
		return fmt.Sprintf("🎉 Great news! Item marked as recovered!\n\n"+
			"📋 Report ID: %s\n"+
			"📍 Recovery Location: %s\n\n"+
			"We're glad your item was recovered!",
			e.ID, where), true

	case models.ItemDeleted:
		return fmt.Sprintf("🗑️ Report deleted successfully\n\n"+
			"📋 Report ID: %s\n\n"+
			"Your report has been removed from our system.",
			e.ID), true

	case models.ItemUpdated:
		fields := make([]string, 0, len(e.UpdatedFields))
		for name := range e.UpdatedFields {
			fields = append(fields, name)
		}
		slices.Sort(fields)
		return fmt.Sprintf("✏️ Report updated successfully\n\n"+
			"📋 Report ID: %s\n"+
			"📝 Updated fields: %s\n\n"+
			"Your changes have been saved.",
			e.ID, strings.Join(fields, ", ")), true
	}
	return "", false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
