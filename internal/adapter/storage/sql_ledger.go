package storage

import (
	"context"
	"math"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

type inventoryRow struct {
	ProductID int64 `db:"product_id"`
	Quantity  int64 `db:"quantity"`
	Version   int64 `db:"version"`
}

func (row inventoryRow) toDomain() domain.Inventory {
	return domain.Inventory{ProductID: row.ProductID, Quantity: row.Quantity, Version: row.Version}
}

// SQLLedger keeps stock in the inventory table. Decrements are guarded by
// quantity >= ? in the UPDATE itself.
type SQLLedger struct {
	db *sqlx.DB
}

func NewSQLLedger(db *sqlx.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) Get(ctx context.Context, productID int64) (domain.Inventory, error) {
	return getInventory(ctx, l.db, productID)
}

func (l *SQLLedger) Create(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, version)
		VALUES (?, ?, 1)`, productID, quantity)
	if isDuplicateKey(err) {
		return domain.Inventory{}, errors.Wrapf(domain.ErrDuplicateIdentity, "inventory for product %d", productID)
	}
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "insert inventory")
	}
	return domain.Inventory{ProductID: productID, Quantity: quantity, Version: 1}, nil
}

func (l *SQLLedger) Decrement(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	var inv domain.Inventory
	err := withTx(ctx, l.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity - ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND quantity >= ?`,
			quantity, productID, quantity,
		)
		if err != nil {
			return errors.Wrap(err, "update inventory")
		}

		rows, _ := result.RowsAffected()
		current, err := getInventory(ctx, tx, productID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errors.Wrapf(domain.ErrInsufficientStock, "requested %d, available %d", quantity, current.Quantity)
		}
		inv = current
		return nil
	})
	return inv, err
}

func (l *SQLLedger) Increment(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	var inv domain.Inventory
	err := withTx(ctx, l.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET quantity = quantity + ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND quantity <= ?`,
			quantity, productID, math.MaxInt64-quantity,
		)
		if err != nil {
			return errors.Wrap(err, "update inventory")
		}

		rows, _ := result.RowsAffected()
		current, err := getInventory(ctx, tx, productID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return stockOverflow(quantity, current.Quantity)
		}
		inv = current
		return nil
	})
	return inv, err
}

func getInventory(ctx context.Context, q sqlx.QueryerContext, productID int64) (domain.Inventory, error) {
	var row inventoryRow
	err := sqlx.GetContext(ctx, q, &row, `
		SELECT product_id, quantity, version
		FROM inventory WHERE product_id = ?`, productID)
	if isNoRows(err) {
		return domain.Inventory{}, errors.Wrapf(domain.ErrNotFound, "inventory for product %d", productID)
	}
	if err != nil {
		return domain.Inventory{}, errors.Wrap(err, "query inventory")
	}
	return row.toDomain(), nil
}

// SQLJournal appends purchase records to the purchases table.
type SQLJournal struct {
	db *sqlx.DB
}

func NewSQLJournal(db *sqlx.DB) *SQLJournal {
	return &SQLJournal{db: db}
}

func (j *SQLJournal) RecordPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO purchases (id, request_id, product_id, quantity, remaining, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.ID, record.RequestID, record.ProductID, record.Quantity, record.Remaining,
		record.CreatedAt.UnixMilli(),
	)
	return errors.Wrap(err, "insert purchase")
}
