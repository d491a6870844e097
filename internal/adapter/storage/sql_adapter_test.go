package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/catalog/internal/core/domain"
)

func getSQLiteDB(t *testing.T) *sqlx.DB {
	db, err := OpenSQL(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func getMySQLDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}

	db, err := OpenSQL(context.Background(), DriverMySQL, dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteBackends(t *testing.T) {
	db := getSQLiteDB(t)

	t.Run("products", func(t *testing.T) { testVersionedRepository(t, NewSQLProductRepository(db)) })
	t.Run("ledger", func(t *testing.T) { testLedgerRepository(t, NewSQLLedger(db)) })
	t.Run("reviews", func(t *testing.T) { testReviewRepository(t, NewSQLReviewRepository(db)) })
}

func TestMySQLBackends(t *testing.T) {
	db := getMySQLDB(t)

	t.Run("products", func(t *testing.T) { testVersionedRepository(t, NewSQLProductRepository(db)) })
	t.Run("ledger", func(t *testing.T) { testLedgerRepository(t, NewSQLLedger(db)) })
	t.Run("reviews", func(t *testing.T) { testReviewRepository(t, NewSQLReviewRepository(db)) })
}

func TestMigrate_Idempotent(t *testing.T) {
	db := getSQLiteDB(t)
	assert.NoError(t, Migrate(db))
}

func TestSQLProductRepository_NextID(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLProductRepository(getSQLiteDB(t))

	id, err := repo.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	require.NoError(t, repo.Insert(ctx, domain.Record[domain.Product]{ID: "200", Version: 1, Payload: domain.Product{Name: "Product 2", Quantity: 5}}))
	id, err = repo.NextID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "201", id)
}

func TestSQLLedger_DecrementUpdatesVersionColumn(t *testing.T) {
	ctx := context.Background()
	db := getSQLiteDB(t)
	ledger := NewSQLLedger(db)

	_, err := ledger.Create(ctx, 7, 100)
	require.NoError(t, err)
	_, err = ledger.Decrement(ctx, 7, 10)
	require.NoError(t, err)

	var version, quantity int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT version, quantity FROM inventory WHERE product_id = 7`).Scan(&version, &quantity))
	assert.Equal(t, int64(2), version)
	assert.Equal(t, int64(90), quantity)
}

func TestSQLJournal_RecordPurchase(t *testing.T) {
	ctx := context.Background()
	db := getSQLiteDB(t)
	journal := NewSQLJournal(db)

	rec := domain.PurchaseRecord{
		ID:        "purchase-1",
		RequestID: "req-1",
		ProductID: 1,
		Quantity:  2,
		Remaining: 8,
		CreatedAt: time.Now(),
	}
	require.NoError(t, journal.RecordPurchase(ctx, rec))

	var count int
	require.NoError(t, db.GetContext(ctx, &count, `SELECT COUNT(*) FROM purchases WHERE id = ?`, rec.ID))
	assert.Equal(t, 1, count)

	assert.Error(t, journal.RecordPurchase(ctx, rec))
}
