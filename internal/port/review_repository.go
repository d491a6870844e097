package port

import (
	"context"

	"github.com/rl1809/catalog/internal/core/domain"
)

type ReviewRepository interface {
	NextID(ctx context.Context) (string, error)

	Get(ctx context.Context, id string) (domain.Record[domain.Review], error)

	// FindByProductID looks the aggregate up by its secondary key
	FindByProductID(ctx context.Context, productID int64) (domain.Record[domain.Review], error)

	// Insert stores a new aggregate; both the id and the product id must be unused
	Insert(ctx context.Context, record domain.Record[domain.Review]) error

	// AppendEntry pushes entry to the end of the aggregate and bumps the version
	// only if the stored version equals expectedVersion
	AppendEntry(ctx context.Context, id string, expectedVersion int64, entry domain.ReviewEntry) (domain.Record[domain.Review], error)

	Delete(ctx context.Context, id string, expectedVersion int64) error
}
