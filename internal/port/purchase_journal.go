package port

import (
	"context"

	"github.com/rl1809/catalog/internal/core/domain"
)

type PurchaseJournal interface {
	RecordPurchase(ctx context.Context, record domain.PurchaseRecord) error
}
