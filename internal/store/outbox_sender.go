package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/util"
)

// Outbox sender defaults
const (
	DefaultOutboxPollInterval = 5 * time.Second
	DefaultOutboxMaxAttempts  = 5
	outboxStaleThreshold      = 5 * time.Minute
	outboxClaimLimit          = 10
)

// OutboxSendFunc performs the actual delivery of one message.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// OutboxSenderOpts holds configuration for an OutboxSender.
type OutboxSenderOpts struct {
	PollInterval time.Duration
	MaxAttempts  int
	Clock        func() time.Time
}

// OutboxSenderOption configures an OutboxSender.
type OutboxSenderOption func(*OutboxSenderOpts)

// WithPollInterval sets how often due messages are claimed.
func WithPollInterval(d time.Duration) OutboxSenderOption {
	return func(o *OutboxSenderOpts) { o.PollInterval = d }
}

// WithMaxAttempts sets how many deliveries are tried before a message is marked failed.
func WithMaxAttempts(n int) OutboxSenderOption {
	return func(o *OutboxSenderOpts) { o.MaxAttempts = n }
}

// WithOutboxClock overrides the time source.
func WithOutboxClock(clock func() time.Time) OutboxSenderOption {
	return func(o *OutboxSenderOpts) { o.Clock = clock }
}

// OutboxSender periodically claims due outbox messages and attempts to send them.
type OutboxSender struct {
	repo         OutboxRepo
	sendFunc     OutboxSendFunc
	pollInterval time.Duration
	maxAttempts  int
	now          func() time.Time
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, opts ...OutboxSenderOption) *OutboxSender {
	o := OutboxSenderOpts{
		PollInterval: DefaultOutboxPollInterval,
		MaxAttempts:  DefaultOutboxMaxAttempts,
		Clock:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOutboxPollInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultOutboxMaxAttempts
	}
	return &OutboxSender{
		repo:         repo,
		sendFunc:     sendFunc,
		pollInterval: o.PollInterval,
		maxAttempts:  o.MaxAttempts,
		now:          o.Clock,
	}
}

// RecoverStaleMessages requeues messages stuck in sending state after a crash.
// Should be called once at startup.
func (s *OutboxSender) RecoverStaleMessages(ctx context.Context) error {
	n, err := s.repo.RequeueStaleSendingMessages(ctx, s.now().Add(-outboxStaleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.pollInterval)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.ProcessDue(ctx)
		}
	}
}

// ProcessDue sends every message that is currently due and returns how many were delivered.
func (s *OutboxSender) ProcessDue(ctx context.Context) int {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(ctx, now, outboxClaimLimit)
	if err != nil {
		slog.Error("OutboxSender.ProcessDue: claim failed", "error", err)
		return 0
	}

	sent := 0
	for _, msg := range msgs {
		slog.Debug("OutboxSender.ProcessDue: sending message", "id", msg.ID, "to", util.RedactPhone(msg.Phone), "kind", msg.Kind)
		if err := s.sendFunc(ctx, msg); err != nil {
			final := msg.Attempts+1 >= s.maxAttempts
			// Exponential backoff: 10s, 20s, 40s, ...
			backoff := time.Duration(10*(1<<msg.Attempts)) * time.Second
			slog.Error("OutboxSender.ProcessDue: send failed", "id", msg.ID, "attempt", msg.Attempts+1, "final", final, "error", err)
			if err := s.repo.FailOutboxMessage(ctx, msg.ID, err.Error(), now.Add(backoff), final); err != nil {
				slog.Error("OutboxSender.ProcessDue: fail message error", "id", msg.ID, "error", err)
			}
			continue
		}
		if err := s.repo.MarkOutboxMessageSent(ctx, msg.ID); err != nil {
			slog.Error("OutboxSender.ProcessDue: mark sent error", "id", msg.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}
