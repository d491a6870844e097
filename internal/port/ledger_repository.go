package port

import (
	"context"

	"github.com/rl1809/catalog/internal/core/domain"
)

type LedgerRepository interface {
	Get(ctx context.Context, productID int64) (domain.Inventory, error)

	// Create initializes a ledger at version 1
	Create(ctx context.Context, productID int64, quantity int64) (domain.Inventory, error)

	// Decrement atomically decreases stock, domain.ErrInsufficientStock if
	// quantity would go negative
	Decrement(ctx context.Context, productID int64, quantity int64) (domain.Inventory, error)

	// Increment restores or adds stock
	Increment(ctx context.Context, productID int64, quantity int64) (domain.Inventory, error)
}
