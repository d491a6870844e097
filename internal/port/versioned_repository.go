package port

import (
	"context"

	"github.com/rl1809/catalog/internal/core/domain"
)

type VersionedRepository[P any] interface {
	// NextID allocates an identity for a record created without one
	NextID(ctx context.Context) (string, error)

	// Get returns the current record or domain.ErrNotFound
	Get(ctx context.Context, id string) (domain.Record[P], error)

	// Insert stores a new record, domain.ErrDuplicateIdentity if the id is taken
	Insert(ctx context.Context, record domain.Record[P]) error

	// CompareAndSwap replaces the payload and bumps the version only if the
	// stored version equals expectedVersion
	CompareAndSwap(ctx context.Context, id string, expectedVersion int64, payload P) (domain.Record[P], error)

	// Delete removes the record only if the stored version equals expectedVersion
	Delete(ctx context.Context, id string, expectedVersion int64) error
}
