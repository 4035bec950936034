package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BTreeMap/IsItStolen/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultContextTTL is the inactivity window after which a conversation expires.
const DefaultContextTTL = time.Hour

const conversationKeyPrefix = "conversation:"

// ConversationKey returns the key a conversation for phone is stored under.
func ConversationKey(phone string) string {
	return conversationKeyPrefix + phone
}

// ConversationStore persists conversation contexts by phone number. Writes replace the
// whole document; there is no partial update and no locking.
type ConversationStore interface {
	// Get returns nil, nil when no live context exists for phone.
	Get(ctx context.Context, phone string) (*models.ConversationContext, error)
	// Save writes conv and resets its expiry to ttl.
	Save(ctx context.Context, conv models.ConversationContext, ttl time.Duration) error
	Delete(ctx context.Context, phone string) error
	Exists(ctx context.Context, phone string) (bool, error)
}

// RedisConversationStore keeps contexts as JSON strings in Redis.
type RedisConversationStore struct {
	client redis.Cmdable
}

var _ ConversationStore = (*RedisConversationStore)(nil)

// NewRedisConversationStore creates a store over an existing Redis client.
func NewRedisConversationStore(client redis.Cmdable) *RedisConversationStore {
	return &RedisConversationStore{client: client}
}

func (s *RedisConversationStore) Get(ctx context.Context, phone string) (*models.ConversationContext, error) {
	raw, err := s.client.Get(ctx, ConversationKey(phone)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	var conv models.ConversationContext
	if err := json.Unmarshal(raw, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	slog.Debug("RedisConversationStore.Get loaded", "state", conv.State)
	return &conv, nil
}

func (s *RedisConversationStore) Save(ctx context.Context, conv models.ConversationContext, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, ConversationKey(conv.PhoneNumber), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("RedisConversationStore.Save stored", "state", conv.State, "ttl", ttl)
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, ConversationKey(phone)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Exists(ctx context.Context, phone string) (bool, error) {
	n, err := s.client.Exists(ctx, ConversationKey(phone)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check conversation: %w", err)
	}
	return n > 0, nil
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// InMemoryConversationStore is a process-local ConversationStore. Values are stored as
// JSON so callers see the same decoding behaviour as with Redis.
type InMemoryConversationStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

var _ ConversationStore = (*InMemoryConversationStore)(nil)

// NewInMemoryConversationStore creates an empty store. A nil clock uses time.Now.
func NewInMemoryConversationStore(clock func() time.Time) *InMemoryConversationStore {
	if clock == nil {
		clock = time.Now
	}
	return &InMemoryConversationStore{entries: make(map[string]memoryEntry), now: clock}
}

func (s *InMemoryConversationStore) Get(_ context.Context, phone string) (*models.ConversationContext, error) {
	s.mu.Lock()
	e, ok := s.live(phone)
	s.mu.Unlock()
	if !ok {
		return nil, nil
	}
	var conv models.ConversationContext
	if err := json.Unmarshal(e.raw, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &conv, nil
}

func (s *InMemoryConversationStore) Save(_ context.Context, conv models.ConversationContext, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultContextTTL
	}
	raw, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conv.PhoneNumber] = memoryEntry{raw: raw, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *InMemoryConversationStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}

func (s *InMemoryConversationStore) Exists(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(phone)
	return ok, nil
}

// live returns the entry for phone if it has not expired. Callers hold s.mu.
func (s *InMemoryConversationStore) live(phone string) (memoryEntry, bool) {
	e, ok := s.entries[phone]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, phone)
		return memoryEntry{}, false
	}
	return e, true
}
