package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupTTL is how long Redis remembers an inbound message id.
const DefaultDedupTTL = 24 * time.Hour

// DedupRecord represents an inbound message deduplication record.
type DedupRecord struct {
	MessageID   string     `json:"message_id"`
	PhoneNumber string     `json:"phone_number"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// DedupRepo detects redelivered inbound messages.
type DedupRepo interface {
	// IsDuplicate checks if a message ID has already been recorded.
	IsDuplicate(ctx context.Context, messageID string) (bool, error)

	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(ctx context.Context, messageID, phone string) (bool, error)

	// MarkProcessed records that routing of the message finished.
	MarkProcessed(ctx context.Context, messageID string) error
}

func dedupKey(messageID string) string {
	return "inbound:" + messageID
}

const (
	dedupReceived  = "received"
	dedupProcessed = "processed"
)

// RedisDedupRepo stores inbound:{message_id} markers with an expiry.
type RedisDedupRepo struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ DedupRepo = (*RedisDedupRepo)(nil)

// NewRedisDedupRepo creates a dedup repo. A non-positive ttl uses DefaultDedupTTL.
func NewRedisDedupRepo(client redis.Cmdable, ttl time.Duration) *RedisDedupRepo {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDedupRepo{client: client, ttl: ttl}
}

func (r *RedisDedupRepo) IsDuplicate(ctx context.Context, messageID string) (bool, error) {
	n, err := r.client.Exists(ctx, dedupKey(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return n > 0, nil
}

func (r *RedisDedupRepo) RecordInbound(ctx context.Context, messageID, phone string) (bool, error) {
	ok, err := r.client.SetNX(ctx, dedupKey(messageID), dedupReceived, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	return ok, nil
}

func (r *RedisDedupRepo) MarkProcessed(ctx context.Context, messageID string) error {
	err := r.client.SetArgs(ctx, dedupKey(messageID), dedupProcessed, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

// InMemoryDedupRepo is a process-local DedupRepo without expiry.
type InMemoryDedupRepo struct {
	mu      sync.Mutex
	records map[string]*DedupRecord
}

var _ DedupRepo = (*InMemoryDedupRepo)(nil)

func NewInMemoryDedupRepo() *InMemoryDedupRepo {
	return &InMemoryDedupRepo{records: make(map[string]*DedupRecord)}
}

func (r *InMemoryDedupRepo) IsDuplicate(_ context.Context, messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[messageID]
	return ok, nil
}

func (r *InMemoryDedupRepo) RecordInbound(_ context.Context, messageID, phone string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[messageID]; ok {
		return false, nil
	}
	r.records[messageID] = &DedupRecord{MessageID: messageID, PhoneNumber: phone, ReceivedAt: time.Now()}
	return true, nil
}

func (r *InMemoryDedupRepo) MarkProcessed(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[messageID]; ok {
		now := time.Now()
		rec.ProcessedAt = &now
	}
	return nil
}
