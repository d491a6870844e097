package service

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/core/domain"
)

type failingGuard struct{}

func (failingGuard) Claim(ctx context.Context, key string) (bool, error) {
	return false, errors.New("guard unavailable")
}

func (failingGuard) Release(ctx context.Context, key string) error { return nil }

type failingJournal struct {
	calls atomic.Int32
}

func (j *failingJournal) RecordPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	j.calls.Add(1)
	return errors.New("journal down")
}

func setupInventory(t *testing.T, stock int64) (*InventoryService, context.Context) {
	t.Helper()
	ctx := context.Background()
	svc := NewInventoryService(storage.NewMemoryLedger(), storage.NewMemoryIdempotencyGuard(time.Minute), 1000)
	_, err := svc.Create(ctx, 100, stock)
	require.NoError(t, err)
	return svc, ctx
}

func TestPurchase(t *testing.T) {
	svc, ctx := setupInventory(t, 10)

	t.Run("Success", func(t *testing.T) {
		inv, err := svc.Purchase(ctx, "", 100, 5)
		require.NoError(t, err)
		assert.Equal(t, int64(5), inv.Quantity)
		assert.Equal(t, int64(2), inv.Version)
	})

	t.Run("Fail when stock is insufficient", func(t *testing.T) {
		_, err := svc.Purchase(ctx, "", 100, 10)
		assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

		inv, err := svc.GetQuantity(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(5), inv.Quantity)
	})

	t.Run("Fail on non-positive quantity", func(t *testing.T) {
		_, err := svc.Purchase(ctx, "", 100, 0)
		assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
		_, err = svc.Purchase(ctx, "", 100, -3)
		assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
	})

	t.Run("Fail on unknown product", func(t *testing.T) {
		_, err := svc.Purchase(ctx, "", 999, 1)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("Queues a journal record", func(t *testing.T) {
		select {
		case rec := <-svc.GetPurchaseQueue():
			assert.Equal(t, int64(100), rec.ProductID)
			assert.Equal(t, int64(5), rec.Quantity)
			assert.Equal(t, int64(5), rec.Remaining)
			assert.NotEmpty(t, rec.ID)
		default:
			t.Fatal("expected a queued purchase record")
		}
	})
}

func TestPurchase_Idempotency(t *testing.T) {
	svc, ctx := setupInventory(t, 10)

	_, err := svc.Purchase(ctx, "req-1", 100, 2)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, "req-1", 100, 2)
	assert.True(t, errors.Is(err, domain.ErrDuplicateRequest))

	inv, err := svc.GetQuantity(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.Quantity)
}

func TestPurchase_ReleasesKeyOnFailure(t *testing.T) {
	svc, ctx := setupInventory(t, 1)

	_, err := svc.Purchase(ctx, "req-2", 100, 5)
	assert.True(t, errors.Is(err, domain.ErrInsufficientStock))

	_, err = svc.Restock(ctx, 100, 10)
	require.NoError(t, err)

	inv, err := svc.Purchase(ctx, "req-2", 100, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(6), inv.Quantity)
}

func TestPurchase_GuardError(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(storage.NewMemoryLedger(), failingGuard{}, 10)
	_, err := svc.Create(ctx, 1, 5)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, "req", 1, 1)
	require.Error(t, err)

	inv, err := svc.GetQuantity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), inv.Quantity)
}

func TestPurchase_ConcurrentNeverOversells(t *testing.T) {
	t.Run("Two buyers of six on ten", func(t *testing.T) {
		svc, ctx := setupInventory(t, 10)

		var success, soldOut atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.Purchase(ctx, "", 100, 6)
				if err == nil {
					success.Add(1)
				} else if errors.Is(err, domain.ErrInsufficientStock) {
					soldOut.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), success.Load())
		assert.Equal(t, int32(1), soldOut.Load())
		inv, err := svc.GetQuantity(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(4), inv.Quantity)
	})

	t.Run("Fifty buyers of one on twenty", func(t *testing.T) {
		svc, ctx := setupInventory(t, 20)

		var success atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := svc.Purchase(ctx, "", 100, 1); err == nil {
					success.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(20), success.Load())
		inv, err := svc.GetQuantity(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(0), inv.Quantity)
	})
}

func TestInventoryCreate(t *testing.T) {
	svc, ctx := setupInventory(t, 3)

	_, err := svc.Create(ctx, 100, 1)
	assert.True(t, errors.Is(err, domain.ErrDuplicateIdentity))
	_, err = svc.Create(ctx, 0, 1)
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
	_, err = svc.Create(ctx, 5, -1)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))

	_, err = svc.Restock(ctx, 100, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity))
}

func TestRestock_RejectsOverflow(t *testing.T) {
	svc, ctx := setupInventory(t, 10)

	_, err := svc.Restock(ctx, 100, math.MaxInt64)
	assert.True(t, errors.Is(err, domain.ErrInvalidQuantity), "got %v", err)

	inv, err := svc.GetQuantity(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(10), inv.Quantity)
	assert.Equal(t, int64(1), inv.Version)
}

func TestPurchase_AfterClose(t *testing.T) {
	svc, ctx := setupInventory(t, 10)
	svc.Close()
	svc.Close()

	var inv domain.Inventory
	var err error
	require.NotPanics(t, func() {
		inv, err = svc.Purchase(ctx, "late", 100, 2)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.Quantity)

	_, open := <-svc.GetPurchaseQueue()
	assert.False(t, open)
}

func TestPurchase_CloseWhileEnqueueing(t *testing.T) {
	ctx := context.Background()
	svc := NewInventoryService(storage.NewMemoryLedger(), nil, 1)
	_, err := svc.Create(ctx, 100, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(ctx, "", 100, 1)
			assert.NoError(t, err)
		}()
	}

	done := make(chan struct{})
	go func() {
		for range svc.GetPurchaseQueue() {
		}
		close(done)
	}()

	svc.Close()
	wg.Wait()
	<-done

	inv, err := svc.GetQuantity(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(80), inv.Quantity)
}

func TestJournalWorker(t *testing.T) {
	t.Run("Persists queued purchases", func(t *testing.T) {
		svc, ctx := setupInventory(t, 10)
		journal := storage.NewMemoryJournal()

		_, err := svc.Purchase(ctx, "a", 100, 3)
		require.NoError(t, err)
		_, err = svc.Purchase(ctx, "b", 100, 2)
		require.NoError(t, err)
		svc.Close()

		RunJournalWorker(1, svc.GetPurchaseQueue(), journal, storage.NewMemoryLedger())

		records := journal.Records()
		require.Len(t, records, 2)
		assert.Equal(t, "a", records[0].RequestID)
		assert.Equal(t, int64(7), records[0].Remaining)
		assert.Equal(t, int64(5), records[1].Remaining)
	})

	t.Run("Restocks when the journal write fails", func(t *testing.T) {
		ctx := context.Background()
		ledger := storage.NewMemoryLedger()
		svc := NewInventoryService(ledger, nil, 10)
		_, err := svc.Create(ctx, 100, 10)
		require.NoError(t, err)

		_, err = svc.Purchase(ctx, "", 100, 4)
		require.NoError(t, err)
		svc.Close()

		journal := &failingJournal{}
		RunJournalWorker(1, svc.GetPurchaseQueue(), journal, ledger)

		assert.Equal(t, int32(1), journal.calls.Load())
		inv, err := svc.GetQuantity(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(10), inv.Quantity)
	})
}
