package service_test

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/core/service"
	"github.com/rl1809/catalog/internal/port"
)

func openSQLite(t *testing.T, migrate bool) *sqlx.DB {
	t.Helper()
	db, err := storage.OpenSQL(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	if migrate {
		require.NoError(t, storage.Migrate(db))
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func runWorkers(svc *service.InventoryService, n int, journal port.PurchaseJournal, ledger port.LedgerRepository) *sync.WaitGroup {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			service.RunJournalWorker(id, svc.GetPurchaseQueue(), journal, ledger)
		}(i)
	}
	return &wg
}

func testFullPurchaseFlow(t *testing.T, ledger port.LedgerRepository, db *sqlx.DB) {
	ctx := context.Background()
	productID := time.Now().UnixNano() % 1_000_000_000
	initialStock := int64(10)

	_, err := ledger.Create(ctx, productID, initialStock)
	require.NoError(t, err)

	svc := service.NewInventoryService(ledger, storage.NewMemoryIdempotencyGuard(time.Minute), 100)
	wg := runWorkers(svc, 3, storage.NewSQLJournal(db), ledger)

	var successCount atomic.Int32
	var purchaseWg sync.WaitGroup
	for i := 0; i < 20; i++ {
		purchaseWg.Add(1)
		go func() {
			defer purchaseWg.Done()
			if _, err := svc.Purchase(ctx, uuid.NewString(), productID, 1); err == nil {
				successCount.Add(1)
			}
		}()
	}
	purchaseWg.Wait()

	svc.Close()
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())

	inv, err := ledger.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), inv.Quantity)

	var purchases int
	require.NoError(t, db.GetContext(ctx, &purchases, `SELECT COUNT(*) FROM purchases WHERE product_id = ?`, productID))
	assert.Equal(t, int(initialStock), purchases)
}

func TestIntegration_FullPurchaseFlow(t *testing.T) {
	t.Run("SQLite", func(t *testing.T) {
		db := openSQLite(t, true)
		testFullPurchaseFlow(t, storage.NewSQLLedger(db), db)
	})

	t.Run("Redis", func(t *testing.T) {
		rdb := getRedis(t)
		testFullPurchaseFlow(t, storage.NewRedisAdapter(rdb), openSQLite(t, true))
	})
}

func TestIntegration_RollbackOnJournalFailure(t *testing.T) {
	ctx := context.Background()
	ledger := storage.NewSQLLedger(openSQLite(t, true))
	_, err := ledger.Create(ctx, 1, 5)
	require.NoError(t, err)

	// no schema, so every journal write fails
	brokenJournal := storage.NewSQLJournal(openSQLite(t, false))

	svc := service.NewInventoryService(ledger, nil, 10)
	wg := runWorkers(svc, 1, brokenJournal, ledger)

	_, err = svc.Purchase(ctx, "", 1, 2)
	require.NoError(t, err)

	svc.Close()
	wg.Wait()

	inv, err := ledger.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5), inv.Quantity)
	assert.Equal(t, int64(3), inv.Version)
}

func TestIntegration_IdempotencyPreventsDoublePurchase(t *testing.T) {
	rdb := getRedis(t)
	ctx := context.Background()
	productID := time.Now().UnixNano() % 1_000_000_000
	requestID := "same-request-id-" + uuid.NewString()

	adapter := storage.NewRedisAdapter(rdb)
	require.NoError(t, adapter.SetStock(ctx, productID, 10))

	svc := service.NewInventoryService(adapter, adapter, 100)
	defer svc.Close()
	go func() {
		for range svc.GetPurchaseQueue() {
		}
	}()

	_, err := svc.Purchase(ctx, requestID, productID, 1)
	require.NoError(t, err)

	_, err = svc.Purchase(ctx, requestID, productID, 1)
	assert.True(t, errors.Is(err, domain.ErrDuplicateRequest))

	inv, err := adapter.Get(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(9), inv.Quantity)
}

func getRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}
