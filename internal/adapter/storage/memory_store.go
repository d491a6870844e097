package storage

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

type memoryEntry[P domain.Payload[P]] struct {
	mu      sync.Mutex
	record  domain.Record[P]
	deleted bool
}

// MemoryStore keeps records in process. Every key has its own mutex, so a
// read-check-write on one key never waits for another key.
type MemoryStore[P domain.Payload[P]] struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry[P]
	seq     atomic.Int64
}

func NewMemoryStore[P domain.Payload[P]]() *MemoryStore[P] {
	return &MemoryStore[P]{entries: make(map[string]*memoryEntry[P])}
}

// NextID hands out increasing decimal ids, skipping ids already in use.
func (m *MemoryStore[P]) NextID(ctx context.Context) (string, error) {
	for {
		id := strconv.FormatInt(m.seq.Add(1), 10)
		if _, ok := m.lookup(id); !ok {
			return id, nil
		}
	}
}

func (m *MemoryStore[P]) Get(ctx context.Context, id string) (domain.Record[P], error) {
	e, ok := m.lookup(id)
	if !ok {
		return domain.Record[P]{}, errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.Record[P]{}, errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}
	return cloneRecord(e.record), nil
}

func (m *MemoryStore[P]) Insert(ctx context.Context, record domain.Record[P]) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[record.ID]; ok && !e.isDeleted() {
		return errors.Wrapf(domain.ErrDuplicateIdentity, "id %s", record.ID)
	}
	m.entries[record.ID] = &memoryEntry[P]{record: cloneRecord(record)}
	return nil
}

// Mutate runs fn on the current record inside the key's critical section.
// The payload fn returns is stored at version+1; an error from fn leaves the
// record untouched.
func (m *MemoryStore[P]) Mutate(ctx context.Context, id string, fn func(current domain.Record[P]) (P, error)) (domain.Record[P], error) {
	e, ok := m.lookup(id)
	if !ok {
		return domain.Record[P]{}, errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.Record[P]{}, errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}

	payload, err := fn(cloneRecord(e.record))
	if err != nil {
		return domain.Record[P]{}, err
	}

	e.record = domain.Record[P]{ID: id, Version: e.record.Version + 1, Payload: payload.Clone()}
	return cloneRecord(e.record), nil
}

func (m *MemoryStore[P]) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, payload P) (domain.Record[P], error) {
	return m.Mutate(ctx, id, func(current domain.Record[P]) (P, error) {
		if current.Version != expectedVersion {
			var zero P
			return zero, versionConflict(expectedVersion, current.Version)
		}
		return payload, nil
	})
}

func (m *MemoryStore[P]) Delete(ctx context.Context, id string, expectedVersion int64) error {
	e, ok := m.lookup(id)
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return errors.Wrapf(domain.ErrNotFound, "id %s", id)
	}
	if e.record.Version != expectedVersion {
		e.mu.Unlock()
		return versionConflict(expectedVersion, e.record.Version)
	}
	e.deleted = true
	e.mu.Unlock()

	m.mu.Lock()
	if m.entries[id] == e {
		delete(m.entries, id)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore[P]) lookup(id string) (*memoryEntry[P], bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	return e, ok
}

func (e *memoryEntry[P]) isDeleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted
}

func cloneRecord[P domain.Payload[P]](r domain.Record[P]) domain.Record[P] {
	return domain.Record[P]{ID: r.ID, Version: r.Version, Payload: r.Payload.Clone()}
}

func versionConflict(expected, stored int64) error {
	return errors.Wrapf(domain.ErrVersionConflict, "expected version %d, stored %d", expected, stored)
}
