package store

import (
	"context"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDedupRepo(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	repo := NewRedisDedupRepo(client, time.Hour)
	ctx := context.Background()

	dup, err := repo.IsDuplicate(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, dup)

	fresh, err := repo.RecordInbound(ctx, "wamid.1", "+15551234567")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.RecordInbound(ctx, "wamid.1", "+15551234567")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, repo.MarkProcessed(ctx, "wamid.1"))
	val, err := mr.Get("inbound:wamid.1")
	require.NoError(t, err)
	assert.Equal(t, "processed", val)
	assert.Greater(t, mr.TTL("inbound:wamid.1"), time.Duration(0), "marking keeps the expiry")

	require.NoError(t, repo.MarkProcessed(ctx, "never-seen"))
	assert.False(t, mr.Exists("inbound:never-seen"))
}

func TestInMemoryDedupRepo(t *testing.T) {
	repo := NewInMemoryDedupRepo()
	ctx := context.Background()

	fresh, err := repo.RecordInbound(ctx, "m1", "+1")
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, err = repo.RecordInbound(ctx, "m1", "+1")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, repo.MarkProcessed(ctx, "m1"))
	assert.NotNil(t, repo.records["m1"].ProcessedAt)

	dup, err := repo.IsDuplicate(ctx, "m2")
	require.NoError(t, err)
	assert.False(t, dup)
}
