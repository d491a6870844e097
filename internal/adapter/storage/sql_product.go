package storage

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

type productRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	Quantity int64  `db:"quantity"`
	Version  int64  `db:"version"`
}

// SQLProductRepository stores products in the products table. The version
// column guards every write.
type SQLProductRepository struct {
	db *sqlx.DB
}

func NewSQLProductRepository(db *sqlx.DB) *SQLProductRepository {
	return &SQLProductRepository{db: db}
}

func (r *SQLProductRepository) NextID(ctx context.Context) (string, error) {
	var next int64
	if err := r.db.GetContext(ctx, &next, `SELECT COALESCE(MAX(id), 0) + 1 FROM products`); err != nil {
		return "", errors.Wrap(err, "next product id")
	}
	return strconv.FormatInt(next, 10), nil
}

func (r *SQLProductRepository) Get(ctx context.Context, id string) (domain.Record[domain.Product], error) {
	pid, err := parseSQLID(id)
	if err != nil {
		return domain.Record[domain.Product]{}, err
	}

	var row productRow
	err = r.db.GetContext(ctx, &row, `
		SELECT id, name, quantity, version
		FROM products WHERE id = ?`, pid)
	if isNoRows(err) {
		return domain.Record[domain.Product]{}, errors.Wrapf(domain.ErrNotFound, "product %d", pid)
	}
	if err != nil {
		return domain.Record[domain.Product]{}, errors.Wrap(err, "query product")
	}
	return row.toRecord(), nil
}

func (r *SQLProductRepository) Insert(ctx context.Context, record domain.Record[domain.Product]) error {
	pid, err := strconv.ParseInt(record.ID, 10, 64)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidPayload, "id %q", record.ID)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, quantity, version)
		VALUES (?, ?, ?, ?)`,
		pid, record.Payload.Name, record.Payload.Quantity, record.Version,
	)
	if isDuplicateKey(err) {
		return errors.Wrapf(domain.ErrDuplicateIdentity, "product %d", pid)
	}
	return errors.Wrap(err, "insert product")
}

func (r *SQLProductRepository) CompareAndSwap(ctx context.Context, id string, expectedVersion int64, payload domain.Product) (domain.Record[domain.Product], error) {
	pid, err := parseSQLID(id)
	if err != nil {
		return domain.Record[domain.Product]{}, err
	}

	err = withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = ?, quantity = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND version = ?`,
			payload.Name, payload.Quantity, pid, expectedVersion,
		)
		if err != nil {
			return errors.Wrap(err, "update product")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return classifyMiss(ctx, tx, `SELECT version FROM products WHERE id = ?`, pid, expectedVersion)
		}
		return nil
	})
	if err != nil {
		return domain.Record[domain.Product]{}, err
	}
	return domain.Record[domain.Product]{ID: id, Version: expectedVersion + 1, Payload: payload}, nil
}

func (r *SQLProductRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	pid, err := parseSQLID(id)
	if err != nil {
		return err
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ? AND version = ?`, pid, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "delete product")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return classifyMiss(ctx, tx, `SELECT version FROM products WHERE id = ?`, pid, expectedVersion)
		}
		return nil
	})
}

func (row productRow) toRecord() domain.Record[domain.Product] {
	return domain.Record[domain.Product]{
		ID:      strconv.FormatInt(row.ID, 10),
		Version: row.Version,
		Payload: domain.Product{Name: row.Name, Quantity: row.Quantity},
	}
}

func parseSQLID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrNotFound, "id %q", id)
	}
	return n, nil
}
