package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversationContextCopyOnWrite(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	orig := NewConversationContext("+15551234567", t0).WithData(map[string]any{"category": "bicycle"}, t0)
	next := orig.WithData(map[string]any{"category": "phone", "description": "black iphone"}, t1)

	assert.Equal(t, "bicycle", orig.Data["category"])
	assert.NotContains(t, orig.Data, "description")
	assert.Equal(t, t0, orig.UpdatedAt)

	assert.Equal(t, "phone", next.Data["category"])
	assert.Equal(t, "black iphone", next.Data["description"])
	assert.Equal(t, t1, next.UpdatedAt)
	assert.Equal(t, t0, next.CreatedAt)

	moved := next.WithState(StateMainMenu, t1)
	assert.Equal(t, StateIdle, next.State)
	assert.Equal(t, StateMainMenu, moved.State)

	moved.Data["extra"] = true
	assert.NotContains(t, next.Data, "extra")
}

func TestConversationContextJSONShape(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewConversationContext("+15551234567", now).WithState(StateMainMenu, now)

	raw, err := json.Marshal(c)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "+15551234567", fields["phone_number"])
	assert.Equal(t, "main_menu", fields["state"])
	assert.Contains(t, fields, "data")
	assert.Contains(t, fields, "created_at")
	assert.Contains(t, fields, "updated_at")
}

func TestConversationContextIsActive(t *testing.T) {
	now := time.Now()
	c := NewConversationContext("+15551234567", now)
	assert.True(t, c.IsActive())
	assert.False(t, c.WithState(StateComplete, now).IsActive())
	assert.False(t, c.WithState(StateCancelled, now).IsActive())
}
