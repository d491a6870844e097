package storage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rl1809/catalog/internal/core/domain"
)

func ledgerKey(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// MemoryIdempotencyGuard remembers claimed keys until their TTL passes.
type MemoryIdempotencyGuard struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

func NewMemoryIdempotencyGuard(ttl time.Duration) *MemoryIdempotencyGuard {
	if ttl <= 0 {
		ttl = idempotencyKeyTTL
	}
	return &MemoryIdempotencyGuard{ttl: ttl, keys: make(map[string]time.Time), now: time.Now}
}

func (g *MemoryIdempotencyGuard) Claim(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if exp, ok := g.keys[key]; ok && now.Before(exp) {
		return false, nil
	}
	g.keys[key] = now.Add(g.ttl)
	return true, nil
}

func (g *MemoryIdempotencyGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	delete(g.keys, key)
	g.mu.Unlock()
	return nil
}

// MemoryJournal collects purchase records in process.
type MemoryJournal struct {
	mu      sync.Mutex
	records []domain.PurchaseRecord
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) RecordPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	j.mu.Lock()
	j.records = append(j.records, record)
	j.mu.Unlock()
	return nil
}

// Records returns a copy of everything written so far.
func (j *MemoryJournal) Records() []domain.PurchaseRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]domain.PurchaseRecord, len(j.records))
	copy(out, j.records)
	return out
}
