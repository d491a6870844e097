package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

type reviewRow struct {
	ID        string `db:"id"`
	ProductID int64  `db:"product_id"`
	Version   int64  `db:"version"`
}

type reviewEntryRow struct {
	Username  string `db:"username"`
	Content   string `db:"content"`
	CreatedAt int64  `db:"created_at"`
}

// SQLReviewRepository keeps the aggregate header in reviews and its entries
// as an append log in review_entries, ordered by seq.
type SQLReviewRepository struct {
	db *sqlx.DB
}

func NewSQLReviewRepository(db *sqlx.DB) *SQLReviewRepository {
	return &SQLReviewRepository{db: db}
}

func (r *SQLReviewRepository) NextID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *SQLReviewRepository) Get(ctx context.Context, id string) (domain.Record[domain.Review], error) {
	return r.load(ctx, `SELECT id, product_id, version FROM reviews WHERE id = ?`, id)
}

func (r *SQLReviewRepository) FindByProductID(ctx context.Context, productID int64) (domain.Record[domain.Review], error) {
	return r.load(ctx, `SELECT id, product_id, version FROM reviews WHERE product_id = ?`, productID)
}

func (r *SQLReviewRepository) Insert(ctx context.Context, record domain.Record[domain.Review]) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (id, product_id, version)
			VALUES (?, ?, ?)`,
			record.ID, record.Payload.ProductID, record.Version,
		)
		if isDuplicateKey(err) {
			return errors.Wrapf(domain.ErrDuplicateIdentity, "review for product %d", record.Payload.ProductID)
		}
		if err != nil {
			return errors.Wrap(err, "insert review")
		}

		for seq, entry := range record.Payload.Entries {
			if err := insertReviewEntry(ctx, tx, record.ID, seq, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *SQLReviewRepository) AppendEntry(ctx context.Context, id string, expectedVersion int64, entry domain.ReviewEntry) (domain.Record[domain.Review], error) {
	var rec domain.Record[domain.Review]
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE reviews SET version = version + 1
			WHERE id = ? AND version = ?`,
			id, expectedVersion,
		)
		if err != nil {
			return errors.Wrap(err, "bump review version")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return classifyMiss(ctx, tx, `SELECT version FROM reviews WHERE id = ?`, id, expectedVersion)
		}

		// the header row is locked by the UPDATE above, so seq cannot race
		var seq int
		if err := tx.GetContext(ctx, &seq, `SELECT COUNT(*) FROM review_entries WHERE review_id = ?`, id); err != nil {
			return errors.Wrap(err, "count review entries")
		}
		if err := insertReviewEntry(ctx, tx, id, seq, entry); err != nil {
			return err
		}

		rec, err = loadReview(ctx, tx, `SELECT id, product_id, version FROM reviews WHERE id = ?`, id)
		return err
	})
	return rec, err
}

func (r *SQLReviewRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = ? AND version = ?`, id, expectedVersion)
		if err != nil {
			return errors.Wrap(err, "delete review")
		}

		rows, _ := result.RowsAffected()
		if rows == 0 {
			return classifyMiss(ctx, tx, `SELECT version FROM reviews WHERE id = ?`, id, expectedVersion)
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM review_entries WHERE review_id = ?`, id)
		return errors.Wrap(err, "delete review entries")
	})
}

// load reads header and entries in one transaction so they describe the
// same version.
func (r *SQLReviewRepository) load(ctx context.Context, query string, arg interface{}) (domain.Record[domain.Review], error) {
	var rec domain.Record[domain.Review]
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		rec, err = loadReview(ctx, tx, query, arg)
		return err
	})
	return rec, err
}

func loadReview(ctx context.Context, tx *sqlx.Tx, query string, arg interface{}) (domain.Record[domain.Review], error) {
	var header reviewRow
	err := tx.GetContext(ctx, &header, query, arg)
	if isNoRows(err) {
		return domain.Record[domain.Review]{}, errors.Wrapf(domain.ErrNotFound, "review %v", arg)
	}
	if err != nil {
		return domain.Record[domain.Review]{}, errors.Wrap(err, "query review")
	}

	var rows []reviewEntryRow
	err = tx.SelectContext(ctx, &rows, `
		SELECT username, content, created_at
		FROM review_entries WHERE review_id = ?
		ORDER BY seq`, header.ID)
	if err != nil {
		return domain.Record[domain.Review]{}, errors.Wrap(err, "query review entries")
	}

	entries := make([]domain.ReviewEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, domain.ReviewEntry{
			Username: row.Username,
			Review:   row.Content,
			Date:     time.UnixMilli(row.CreatedAt).UTC(),
		})
	}

	return domain.Record[domain.Review]{
		ID:      header.ID,
		Version: header.Version,
		Payload: domain.Review{ProductID: header.ProductID, Entries: entries},
	}, nil
}

func insertReviewEntry(ctx context.Context, tx *sqlx.Tx, reviewID string, seq int, entry domain.ReviewEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO review_entries (review_id, seq, username, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		reviewID, seq, entry.Username, entry.Review, entry.Date.UnixMilli(),
	)
	return errors.Wrap(err, "insert review entry")
}
