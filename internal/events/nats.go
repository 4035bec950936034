package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the event kind to form the NATS subject.
const SubjectPrefix = "isitstolen.events."

// Subject returns the NATS subject events of kind are published on.
func Subject(kind models.EventKind) string {
	return SubjectPrefix + string(kind)
}

// Publisher is the subset of *nats.Conn used by NATSBus.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSOpts holds configuration for ConnectNATS.
type NATSOpts struct {
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NATSOption configures ConnectNATS.
type NATSOption func(*NATSOpts)

// WithClientName sets the connection name reported to the NATS server.
func WithClientName(name string) NATSOption {
	return func(o *NATSOpts) {
		o.Name = name
	}
}

// WithReconnect sets the reconnect attempt limit and delay.
func WithReconnect(maxReconnects int, wait time.Duration) NATSOption {
	return func(o *NATSOpts) {
		o.MaxReconnects = maxReconnects
		o.ReconnectWait = wait
	}
}

// ConnectNATS dials the NATS server at url.
func ConnectNATS(url string, opts ...NATSOption) (*nats.Conn, error) {
	o := NATSOpts{
		Name:          "isitstolen",
		MaxReconnects: 10,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := nats.Connect(url,
		nats.Name(o.Name),
		nats.MaxReconnects(o.MaxReconnects),
		nats.ReconnectWait(o.ReconnectWait),
		nats.Timeout(o.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	slog.Info("Connected to NATS", "url", url, "name", o.Name)
	return conn, nil
}

// NATSBus publishes each event as JSON to its NATS subject and then delivers it to
// local subscribers.
type NATSBus struct {
	pub   Publisher
	local *InMemoryBus
}

// Ensure NATSBus satisfies the Bus interface.
var _ Bus = (*NATSBus)(nil)

// NewNATSBus wraps pub, usually a *nats.Conn.
func NewNATSBus(pub Publisher) *NATSBus {
	return &NATSBus{pub: pub, local: NewInMemoryBus()}
}

// Subscribe registers a local subscriber.
func (b *NATSBus) Subscribe(kind models.EventKind, h Handler) {
	b.local.Subscribe(kind, h)
}

// Publish sends ev to NATS, then to local subscribers. A NATS failure is returned after
// local delivery has still happened.
func (b *NATSBus) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(envelope{Kind: ev.Kind(), Event: ev})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", ev.Kind(), err)
	}

	subject := Subject(ev.Kind())
	pubErr := b.pub.Publish(subject, data)
	if pubErr != nil {
		slog.Error("NATSBus publish failed", "subject", subject, "error", pubErr)
	} else {
		slog.Debug("NATSBus published", "subject", subject, "bytes", len(data))
	}

	_ = b.local.Publish(ctx, ev)
	if pubErr != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, pubErr)
	}
	return nil
}

type envelope struct {
	Kind  models.EventKind `json:"kind"`
	Event models.Event     `json:"event"`
}
