package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/metrics"
	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/BTreeMap/IsItStolen/internal/store"
	"github.com/BTreeMap/IsItStolen/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice = "+447700900123"
	bob   = "+447700900456"
)

var t0 = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type transitionRecorder struct {
	metrics.NoOp
	transitions []string
	routed      []string
	errors      []string
}

func (r *transitionRecorder) StateTransition(from, to string) {
	r.transitions = append(r.transitions, from+"->"+to)
}
func (r *transitionRecorder) MessageRouted(state string) { r.routed = append(r.routed, state) }
func (r *transitionRecorder) HandlerError(kind string)   { r.errors = append(r.errors, kind) }

type failingStore struct {
	store.ConversationStore
	err error
}

func (s failingStore) Get(context.Context, string) (*models.ConversationContext, error) {
	return nil, s.err
}

func (s failingStore) Save(context.Context, models.ConversationContext, time.Duration) error {
	return s.err
}

func TestStateMachineRedisLifecycle(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	s := store.NewRedisConversationStore(client)
	rec := &transitionRecorder{}
	sm := NewStateMachine(s, WithContextTTL(30*time.Minute), WithTransitionMetrics(rec))
	ctx := context.Background()

	conv, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, conv.State)
	exists, err := s.Exists(ctx, alice)
	require.NoError(t, err)
	assert.False(t, exists, "fresh contexts are not persisted")

	conv, err = sm.Transition(ctx, conv, models.StateMainMenu)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, mr.TTL(store.ConversationKey(alice)))

	conv, err = sm.TransitionWithData(ctx, conv, models.StateCheckingCategory, map[string]any{"source": "test"})
	require.NoError(t, err)

	loaded, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StateCheckingCategory, loaded.State)
	assert.Equal(t, "test", loaded.GetString("source"))

	done, err := sm.Complete(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, done.State)
	assert.False(t, mr.Exists(store.ConversationKey(alice)))

	assert.Equal(t, []string{"idle->main_menu", "main_menu->checking_category", "checking_category->complete"}, rec.transitions)
}

func TestStateMachineContextExpires(t *testing.T) {
	mr, client := testutil.NewRedis(t)
	sm := NewStateMachine(store.NewRedisConversationStore(client), WithContextTTL(time.Minute))
	ctx := context.Background()

	conv, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	_, err = sm.Transition(ctx, conv, models.StateMainMenu)
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	conv, err = sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, conv.State)
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	clock := testutil.NewClock(t0)
	s := store.NewInMemoryConversationStore(clock.Now)
	sm := NewStateMachine(s, WithClock(clock.Now))
	ctx := context.Background()

	conv, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)

	same, err := sm.Transition(ctx, conv, models.StateReportingDate)
	var transition *InvalidStateTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.StateIdle, transition.From)
	assert.Equal(t, models.StateReportingDate, transition.To)
	assert.ErrorIs(t, err, ErrConversation)
	assert.Equal(t, "invalid state transition from 'idle' to 'reporting_date'", err.Error())
	assert.Equal(t, conv, same)

	exists, err := s.Exists(ctx, alice)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStateMachineUpdateDataAndTimestamps(t *testing.T) {
	clock := testutil.NewClock(t0)
	sm := NewStateMachine(store.NewInMemoryConversationStore(clock.Now), WithClock(clock.Now))
	ctx := context.Background()

	conv, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	conv, err = sm.Transition(ctx, conv, models.StateMainMenu)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	updated, err := sm.UpdateData(ctx, conv, map[string]any{"category": "bicycle"})
	require.NoError(t, err)
	assert.Equal(t, t0, updated.CreatedAt)
	assert.Equal(t, t0.Add(5*time.Minute), updated.UpdatedAt)
	assert.Empty(t, conv.GetString("category"), "input context must not change")

	loaded, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "bicycle", loaded.GetString("category"))
	assert.Equal(t, models.StateMainMenu, loaded.State)
}

func TestStateMachineCancelAndReset(t *testing.T) {
	clock := testutil.NewClock(t0)
	s := store.NewInMemoryConversationStore(clock.Now)
	sm := NewStateMachine(s, WithClock(clock.Now))
	ctx := context.Background()

	conv, err := sm.GetOrCreate(ctx, alice)
	require.NoError(t, err)
	conv, err = sm.Transition(ctx, conv, models.StateMainMenu)
	require.NoError(t, err)

	cancelled, err := sm.Cancel(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, cancelled.State)
	exists, err := s.Exists(ctx, alice)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = sm.Transition(ctx, models.NewConversationContext(bob, t0), models.StateMainMenu)
	require.NoError(t, err)
	fresh, err := sm.Reset(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, fresh.State)
	exists, err = s.Exists(ctx, bob)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStateMachineWrapsStoreErrors(t *testing.T) {
	boom := errors.New("connection refused")
	sm := NewStateMachine(failingStore{err: boom})
	ctx := context.Background()

	_, err := sm.GetOrCreate(ctx, alice)
	var repoErr *models.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.ErrorIs(t, err, boom)

	conv := models.NewConversationContext(alice, t0)
	same, err := sm.Transition(ctx, conv, models.StateMainMenu)
	require.ErrorAs(t, err, &repoErr)
	assert.Equal(t, models.StateIdle, same.State)
}
