package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"appraiserai/pkg/domain"
)

const DefaultSessionTTL = 2 * time.Hour

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrItemNotFound  = errors.New("batch item not found")
)

// SessionStore keeps batches for a limited time. Expired batches are gone
// for good, like a reloaded browser tab.
type SessionStore interface {
	Save(ctx context.Context, b domain.Batch) error
	Get(ctx context.Context, id string) (domain.Batch, bool, error)
	Delete(ctx context.Context, id string) error
}

// Edit changes the user-editable fields of one item. Nil fields are left alone.
type Edit struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	PriceRange  *string `json:"priceRange,omitempty"`
	Editing     *bool   `json:"editing,omitempty"`
}

// ApplyEdit returns b with the edit applied to item itemID.
func ApplyEdit(b domain.Batch, itemID string, e Edit) (domain.Batch, domain.BatchItem, error) {
	items := make([]domain.BatchItem, len(b.Items))
	copy(items, b.Items)
	b.Items = items
	for i := range b.Items {
		if b.Items[i].ID != itemID {
			continue
		}
		item := &b.Items[i]
		if e.Title != nil {
			item.Title = strings.TrimSpace(*e.Title)
		}
		if e.Description != nil {
			item.Description = strings.TrimSpace(*e.Description)
		}
		if e.PriceRange != nil {
			item.PriceRange = strings.TrimSpace(*e.PriceRange)
		}
		if e.Editing != nil {
			item.Editing = *e.Editing
		}
		return b, *item, nil
	}
	return b, domain.BatchItem{}, ErrItemNotFound
}

// batchRecord is the redis representation; BatchItem hides image bytes from JSON.
type batchRecord struct {
	Batch  domain.Batch  `json:"batch"`
	Images []imageRecord `json:"images"`
}

type imageRecord struct {
	Original  []byte `json:"original,omitempty"`
	Optimized []byte `json:"optimized,omitempty"`
}

func encodeBatch(b domain.Batch) ([]byte, error) {
	rec := batchRecord{Batch: b, Images: make([]imageRecord, len(b.Items))}
	for i, item := range b.Items {
		rec.Images[i] = imageRecord{Original: item.Original, Optimized: item.Optimized}
	}
	return json.Marshal(rec)
}

func decodeBatch(raw []byte) (domain.Batch, error) {
	var rec batchRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Batch{}, err
	}
	for i := range rec.Batch.Items {
		if i < len(rec.Images) {
			rec.Batch.Items[i].Original = rec.Images[i].Original
			rec.Batch.Items[i].Optimized = rec.Images[i].Optimized
		}
	}
	return rec.Batch, nil
}

// RedisSessionStore stores each batch as one JSON value with a TTL.
// Every Save refreshes the TTL.
type RedisSessionStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "appraiser:batch"
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + ":" + id
}

func (s *RedisSessionStore) Save(ctx context.Context, b domain.Batch) error {
	raw, err := encodeBatch(b)
	if err != nil {
		return fmt.Errorf("encode batch: %w", err)
	}
	return s.client.Set(ctx, s.key(b.ID), raw, s.ttl).Err()
}

func (s *RedisSessionStore) Get(ctx context.Context, id string) (domain.Batch, bool, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Batch{}, false, nil
	}
	if err != nil {
		return domain.Batch{}, false, err
	}
	b, err := decodeBatch(raw)
	if err != nil {
		return domain.Batch{}, false, fmt.Errorf("decode batch: %w", err)
	}
	return b, true, nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// MemorySessionStore keeps batches in process memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	batches map[string]memoryEntry
}

type memoryEntry struct {
	batch     domain.Batch
	expiresAt time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{ttl: ttl, now: time.Now, batches: make(map[string]memoryEntry)}
}

func (s *MemorySessionStore) Save(_ context.Context, b domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[b.ID] = memoryEntry{batch: b, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (domain.Batch, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, false, nil
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.batches, id)
		return domain.Batch{}, false, nil
	}
	return entry.batch, true, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
	return nil
}
