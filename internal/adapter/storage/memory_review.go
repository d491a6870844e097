package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

// MemoryReviewRepository stores review aggregates in process with a
// product id index.
type MemoryReviewRepository struct {
	store *MemoryStore[domain.Review]

	mu        sync.Mutex
	byProduct map[int64]string
}

func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{
		store:     NewMemoryStore[domain.Review](),
		byProduct: make(map[int64]string),
	}
}

func (r *MemoryReviewRepository) NextID(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (r *MemoryReviewRepository) Get(ctx context.Context, id string) (domain.Record[domain.Review], error) {
	return r.store.Get(ctx, id)
}

func (r *MemoryReviewRepository) FindByProductID(ctx context.Context, productID int64) (domain.Record[domain.Review], error) {
	r.mu.Lock()
	id, ok := r.byProduct[productID]
	r.mu.Unlock()
	if !ok {
		return domain.Record[domain.Review]{}, errors.Wrapf(domain.ErrNotFound, "review for product %d", productID)
	}
	return r.store.Get(ctx, id)
}

func (r *MemoryReviewRepository) Insert(ctx context.Context, record domain.Record[domain.Review]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byProduct[record.Payload.ProductID]; ok {
		return errors.Wrapf(domain.ErrDuplicateIdentity, "review for product %d", record.Payload.ProductID)
	}
	if err := r.store.Insert(ctx, record); err != nil {
		return err
	}
	r.byProduct[record.Payload.ProductID] = record.ID
	return nil
}

func (r *MemoryReviewRepository) AppendEntry(ctx context.Context, id string, expectedVersion int64, entry domain.ReviewEntry) (domain.Record[domain.Review], error) {
	return r.store.Mutate(ctx, id, func(current domain.Record[domain.Review]) (domain.Review, error) {
		if current.Version != expectedVersion {
			return domain.Review{}, versionConflict(expectedVersion, current.Version)
		}
		review := current.Payload
		review.Entries = append(review.Entries, entry)
		return review, nil
	})
}

func (r *MemoryReviewRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, id, expectedVersion); err != nil {
		return err
	}

	r.mu.Lock()
	if r.byProduct[rec.Payload.ProductID] == id {
		delete(r.byProduct, rec.Payload.ProductID)
	}
	r.mu.Unlock()
	return nil
}
