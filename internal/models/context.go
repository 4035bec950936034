package models

import (
	"maps"
	"time"
)

// ConversationContext is the persisted, per-phone-number state of a conversation.
//
// It is a value type with copy-on-write updates: WithState and WithData return a new
// context and never modify the receiver or share its Data map.
type ConversationContext struct {
	PhoneNumber string            `json:"phone_number"`
	State       ConversationState `json:"state"`
	Data        map[string]any    `json:"data"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewConversationContext returns a fresh idle context for phone.
func NewConversationContext(phone string, now time.Time) ConversationContext {
	return ConversationContext{
		PhoneNumber: phone,
		State:       StateIdle,
		Data:        map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Clone returns a copy whose Data map is independent of the receiver's.
func (c ConversationContext) Clone() ConversationContext {
	clone := c
	clone.Data = make(map[string]any, len(c.Data))
	maps.Copy(clone.Data, c.Data)
	return clone
}

// WithState returns a copy in the given state, stamped with now.
func (c ConversationContext) WithState(state ConversationState, now time.Time) ConversationContext {
	next := c.Clone()
	next.State = state
	next.UpdatedAt = now
	return next
}

// WithData returns a copy with patch shallow-merged into Data. Keys in patch win.
func (c ConversationContext) WithData(patch map[string]any, now time.Time) ConversationContext {
	next := c.Clone()
	maps.Copy(next.Data, patch)
	next.UpdatedAt = now
	return next
}

// Get returns the value stored under key.
func (c ConversationContext) Get(key string) (any, bool) {
	v, ok := c.Data[key]
	return v, ok
}

// GetString returns the string stored under key, or "" when absent or not a string.
func (c ConversationContext) GetString(key string) string {
	if s, ok := c.Data[key].(string); ok {
		return s
	}
	return ""
}

// IsActive reports whether the conversation has not reached a terminal state.
func (c ConversationContext) IsActive() bool {
	return !c.State.IsTerminal()
}
