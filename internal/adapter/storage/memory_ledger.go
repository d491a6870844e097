package storage

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
)

type stockLevel struct {
	quantity int64
}

func (s stockLevel) Clone() stockLevel { return s }

// MemoryLedger is an in-process LedgerRepository.
type MemoryLedger struct {
	store *MemoryStore[stockLevel]
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{store: NewMemoryStore[stockLevel]()}
}

func (l *MemoryLedger) Get(ctx context.Context, productID int64) (domain.Inventory, error) {
	rec, err := l.store.Get(ctx, ledgerKey(productID))
	if err != nil {
		return domain.Inventory{}, err
	}
	return toInventory(productID, rec), nil
}

func (l *MemoryLedger) Create(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	rec := domain.Record[stockLevel]{ID: ledgerKey(productID), Version: 1, Payload: stockLevel{quantity: quantity}}
	if err := l.store.Insert(ctx, rec); err != nil {
		return domain.Inventory{}, err
	}
	return toInventory(productID, rec), nil
}

func (l *MemoryLedger) Decrement(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	rec, err := l.store.Mutate(ctx, ledgerKey(productID), func(current domain.Record[stockLevel]) (stockLevel, error) {
		if quantity > current.Payload.quantity {
			return stockLevel{}, errors.Wrapf(domain.ErrInsufficientStock, "requested %d, available %d", quantity, current.Payload.quantity)
		}
		return stockLevel{quantity: current.Payload.quantity - quantity}, nil
	})
	if err != nil {
		return domain.Inventory{}, err
	}
	return toInventory(productID, rec), nil
}

func (l *MemoryLedger) Increment(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	rec, err := l.store.Mutate(ctx, ledgerKey(productID), func(current domain.Record[stockLevel]) (stockLevel, error) {
		if quantity > math.MaxInt64-current.Payload.quantity {
			return stockLevel{}, stockOverflow(quantity, current.Payload.quantity)
		}
		return stockLevel{quantity: current.Payload.quantity + quantity}, nil
	})
	if err != nil {
		return domain.Inventory{}, err
	}
	return toInventory(productID, rec), nil
}

func toInventory(productID int64, rec domain.Record[stockLevel]) domain.Inventory {
	return domain.Inventory{ProductID: productID, Quantity: rec.Payload.quantity, Version: rec.Version}
}

func stockOverflow(quantity, available int64) error {
	return errors.Wrapf(domain.ErrInvalidQuantity, "adding %d to %d overflows stock", quantity, available)
}
