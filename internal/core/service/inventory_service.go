package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

// InventoryService is the quantity ledger. Purchases are not conditional on
// a caller token; the only guard is that stock never goes negative.
type InventoryService struct {
	ledger        port.LedgerRepository
	guard         port.IdempotencyGuard
	purchaseQueue chan domain.PurchaseRecord

	// guards purchaseQueue against sends after Close
	mu     sync.RWMutex
	closed bool
}

func NewInventoryService(ledger port.LedgerRepository, guard port.IdempotencyGuard, queueSize int) *InventoryService {
	return &InventoryService{
		ledger:        ledger,
		guard:         guard,
		purchaseQueue: make(chan domain.PurchaseRecord, queueSize),
	}
}

func (s *InventoryService) Create(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	if productID <= 0 {
		return domain.Inventory{}, errors.Wrap(domain.ErrInvalidPayload, "productId is required")
	}
	if quantity < 0 {
		return domain.Inventory{}, errors.Wrap(domain.ErrInvalidQuantity, "initial stock cannot be negative")
	}
	return s.ledger.Create(ctx, productID, quantity)
}

func (s *InventoryService) GetQuantity(ctx context.Context, productID int64) (domain.Inventory, error) {
	return s.ledger.Get(ctx, productID)
}

// Purchase takes quantity units out of stock, all or nothing. A non-empty
// requestID makes the call at-most-once.
func (s *InventoryService) Purchase(ctx context.Context, requestID string, productID, quantity int64) (domain.Inventory, error) {
	if quantity <= 0 {
		return domain.Inventory{}, domain.ErrInvalidQuantity
	}

	idempotencyKey := ""
	if requestID != "" && s.guard != nil {
		idempotencyKey = fmt.Sprintf("purchase:%s", requestID)
		ok, err := s.guard.Claim(ctx, idempotencyKey)
		if err != nil {
			return domain.Inventory{}, errors.Wrap(err, "idempotency check failed")
		}
		if !ok {
			return domain.Inventory{}, domain.ErrDuplicateRequest
		}
	}

	inv, err := s.ledger.Decrement(ctx, productID, quantity)
	if err != nil {
		if idempotencyKey != "" {
			if releaseErr := s.guard.Release(ctx, idempotencyKey); releaseErr != nil {
				log.WithError(releaseErr).WithField("key", idempotencyKey).Warn("failed to release idempotency key")
			}
		}
		return domain.Inventory{}, err
	}

	s.enqueue(ctx, domain.PurchaseRecord{
		ID:        uuid.NewString(),
		RequestID: requestID,
		ProductID: productID,
		Quantity:  quantity,
		Remaining: inv.Quantity,
		CreatedAt: time.Now().UTC(),
	})

	return inv, nil
}

func (s *InventoryService) Restock(ctx context.Context, productID, quantity int64) (domain.Inventory, error) {
	if quantity <= 0 {
		return domain.Inventory{}, domain.ErrInvalidQuantity
	}
	return s.ledger.Increment(ctx, productID, quantity)
}

// enqueue hands the record to the journal workers. The decrement has already
// committed, so a cancelled caller only loses the journal entry.
func (s *InventoryService) enqueue(ctx context.Context, record domain.PurchaseRecord) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		log.WithFields(log.Fields{
			"purchase_id": record.ID,
			"product_id":  record.ProductID,
		}).Warn("purchase journal entry dropped: queue closed")
		return
	}

	select {
	case s.purchaseQueue <- record:
	case <-ctx.Done():
		log.WithFields(log.Fields{
			"purchase_id": record.ID,
			"product_id":  record.ProductID,
		}).Warn("purchase journal entry dropped: context done")
	}
}

func (s *InventoryService) GetPurchaseQueue() <-chan domain.PurchaseRecord {
	return s.purchaseQueue
}

// Close stops accepting journal entries and closes the queue once in-flight
// sends finish. Purchases after Close still commit.
func (s *InventoryService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.purchaseQueue)
}
