// Package conversation drives a user's conversation with the bot: the per-phone state
// machine over the context store, the message router, the hard-coded check and report
// flows, and the text shown to users.
package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/util"
)

// StateMachineOpts holds configuration for StateMachine.
type StateMachineOpts struct {
	ContextTTL time.Duration
	Clock      func() time.Time
	Metrics    metrics.Recorder
}

// StateMachineOption configures a StateMachine.
type StateMachineOption func(*StateMachineOpts)

// WithContextTTL sets the inactivity window after which a stored context expires.
func WithContextTTL(ttl time.Duration) StateMachineOption {
	return func(o *StateMachineOpts) {
		o.ContextTTL = ttl
	}
}

// WithClock overrides the time source used to stamp contexts.
func WithClock(clock func() time.Time) StateMachineOption {
	return func(o *StateMachineOpts) {
		o.Clock = clock
	}
}

// WithTransitionMetrics records every state change into m.
func WithTransitionMetrics(m metrics.Recorder) StateMachineOption {
	return func(o *StateMachineOpts) {
		o.Metrics = m
	}
}

// StateMachine applies validated state changes to conversation contexts and persists
// them. Contexts that reach a terminal state are deleted from the store.
type StateMachine struct {
	store   store.ConversationStore
	ttl     time.Duration
	clock   func() time.Time
	metrics metrics.Recorder
}

// NewStateMachine creates a state machine over s.
func NewStateMachine(s store.ConversationStore, opts ...StateMachineOption) *StateMachine {
	o := StateMachineOpts{
		ContextTTL: store.DefaultContextTTL,
		Clock:      time.Now,
		Metrics:    metrics.NoOp{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &StateMachine{store: s, ttl: o.ContextTTL, clock: o.Clock, metrics: o.Metrics}
}

func (m *StateMachine) now() time.Time {
	return m.clock().UTC()
}

// GetOrCreate returns the stored context for phone, or a fresh idle context. A fresh
// context is not persisted until its first transition.
func (m *StateMachine) GetOrCreate(ctx context.Context, phone string) (models.ConversationContext, error) {
	conv, err := m.store.Get(ctx, phone)
	if err != nil {
		return models.ConversationContext{}, models.NewRepositoryError("conversation get", err)
	}
	if conv == nil {
		slog.Debug("StateMachine.GetOrCreate new conversation", "phone", util.RedactPhone(phone))
		return models.NewConversationContext(phone, m.now()), nil
	}
	return *conv, nil
}

// Transition moves conv to state to and persists the result. An illegal transition
// returns *InvalidStateTransitionError and persists nothing.
func (m *StateMachine) Transition(ctx context.Context, conv models.ConversationContext, to models.ConversationState) (models.ConversationContext, error) {
	return m.TransitionWithData(ctx, conv, to, nil)
}

// TransitionWithData merges patch into conv's data and moves it to state to with a
// single save.
func (m *StateMachine) TransitionWithData(ctx context.Context, conv models.ConversationContext, to models.ConversationState, patch map[string]any) (models.ConversationContext, error) {
	if !models.IsValidTransition(conv.State, to) {
		return conv, &InvalidStateTransitionError{From: conv.State, To: to}
	}
	now := m.now()
	next := conv.WithData(patch, now).WithState(to, now)
	if err := m.save(ctx, next); err != nil {
		return conv, err
	}
	m.metrics.StateTransition(string(conv.State), string(to))
	slog.Debug("StateMachine transitioned", "phone", util.RedactPhone(conv.PhoneNumber), "from", conv.State, "to", to)
	return next, nil
}

// UpdateData merges patch into conv's data and persists the result.
func (m *StateMachine) UpdateData(ctx context.Context, conv models.ConversationContext, patch map[string]any) (models.ConversationContext, error) {
	next := conv.WithData(patch, m.now())
	if err := m.save(ctx, next); err != nil {
		return conv, err
	}
	return next, nil
}

// Cancel ends the conversation and deletes the stored context.
func (m *StateMachine) Cancel(ctx context.Context, conv models.ConversationContext) (models.ConversationContext, error) {
	return m.finish(ctx, conv, models.StateCancelled)
}

// Complete ends the conversation and deletes the stored context.
func (m *StateMachine) Complete(ctx context.Context, conv models.ConversationContext) (models.ConversationContext, error) {
	return m.finish(ctx, conv, models.StateComplete)
}

// Reset deletes any stored context for phone and returns a fresh idle one.
func (m *StateMachine) Reset(ctx context.Context, phone string) (models.ConversationContext, error) {
	if err := m.store.Delete(ctx, phone); err != nil {
		return models.ConversationContext{}, models.NewRepositoryError("conversation delete", err)
	}
	slog.Debug("StateMachine reset conversation", "phone", util.RedactPhone(phone))
	return models.NewConversationContext(phone, m.now()), nil
}

func (m *StateMachine) finish(ctx context.Context, conv models.ConversationContext, terminal models.ConversationState) (models.ConversationContext, error) {
	done := conv.WithState(terminal, m.now())
	if err := m.store.Delete(ctx, conv.PhoneNumber); err != nil {
		return conv, models.NewRepositoryError("conversation delete", err)
	}
	m.metrics.StateTransition(string(conv.State), string(terminal))
	slog.Debug("StateMachine finished conversation", "phone", util.RedactPhone(conv.PhoneNumber), "from", conv.State, "state", terminal)
	return done, nil
}

func (m *StateMachine) save(ctx context.Context, conv models.ConversationContext) error {
	if err := m.store.Save(ctx, conv, m.ttl); err != nil {
		return models.NewRepositoryError("conversation save", err)
	}
	return nil
}
