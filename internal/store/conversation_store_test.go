package store

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConversationStoreRoundTrip(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	s := NewRedisConversationStore(client)
	ctx := context.Background()
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

	got, err := s.Get(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Nil(t, got)

	conv := models.NewConversationContext("+15551234567", now).
		WithState(models.StateCheckingDescription, now).
		WithData(map[string]any{"category": "bicycle"}, now)
	require.NoError(t, s.Save(ctx, conv, 300*time.Second))

	ttl := mr.TTL("conversation:+15551234567")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 300*time.Second)

	got, err = s.Get(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.StateCheckingDescription, got.State)
	assert.Equal(t, "bicycle", got.GetString("category"))
	assert.True(t, got.CreatedAt.Equal(now))

	exists, err := s.Exists(ctx, "+15551234567")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.Delete(ctx, "+15551234567"))
	exists, err = s.Exists(ctx, "+15551234567")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisConversationStoreSlidingExpiry(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	s := NewRedisConversationStore(client)
	ctx := context.Background()
	conv := models.NewConversationContext("+15551234567", time.Now())

	require.NoError(t, s.Save(ctx, conv, time.Minute))
	mr.FastForward(50 * time.Second)
	require.NoError(t, s.Save(ctx, conv.WithState(models.StateMainMenu, time.Now()), time.Minute))
	mr.FastForward(50 * time.Second)

	got, err := s.Get(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, got, "save resets the expiry")

	mr.FastForward(11 * time.Second)
	got, err = s.Get(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Nil(t, got, "expired context looks like it never existed")
}

func TestRedisConversationStoreDefaultTTL(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	s := NewRedisConversationStore(client)
	require.NoError(t, s.Save(context.Background(), models.NewConversationContext("+1", time.Now()), 0))
	assert.Equal(t, DefaultContextTTL, mr.TTL(ConversationKey("+1")))
}

func TestRedisConversationStoreIsolatesPhones(t *testing.T) {
	_, client := testutil.NewRedis(t)
	s := NewRedisConversationStore(client)
	ctx := context.Background()
	now := time.Now()

	a := models.NewConversationContext("+15550000001", now).WithData(map[string]any{"description": "red bike"}, now)
	b := models.NewConversationContext("+15550000002", now).WithState(models.StateMainMenu, now)
	require.NoError(t, s.Save(ctx, a, time.Minute))
	require.NoError(t, s.Save(ctx, b, time.Minute))

	gotA, err := s.Get(ctx, a.PhoneNumber)
	require.NoError(t, err)
	gotB, err := s.Get(ctx, b.PhoneNumber)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, gotA.State)
	assert.Equal(t, "red bike", gotA.GetString("description"))
	assert.Equal(t, models.StateMainMenu, gotB.State)
	assert.Empty(t, gotB.Data)
}

func TestInMemoryConversationStoreExpiry(t *testing.T) {
	clock := testutil.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewInMemoryConversationStore(clock.Now)
	ctx := context.Background()

	conv := models.NewConversationContext("+15551234567", clock.Now()).WithData(map[string]any{"n": 1}, clock.Now())
	require.NoError(t, s.Save(ctx, conv, time.Minute))

	got, err := s.Get(ctx, conv.PhoneNumber)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, float64(1), got.Data["n"], "values round-trip through JSON")

	clock.Advance(time.Minute)
	got, err = s.Get(ctx, conv.PhoneNumber)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := s.Exists(ctx, conv.PhoneNumber)
	require.NoError(t, err)
	assert.False(t, exists)
}
