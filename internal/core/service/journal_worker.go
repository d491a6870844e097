package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

const journalWriteTimeout = 5 * time.Second

// RunJournalWorker persists purchase records until queue is closed. When a
// record cannot be written the purchased quantity is put back on the ledger.
func RunJournalWorker(id int, queue <-chan domain.PurchaseRecord, journal port.PurchaseJournal, ledger port.LedgerRepository) {
	for record := range queue {
		persistPurchase(id, record, journal, ledger)
	}
}

func persistPurchase(id int, record domain.PurchaseRecord, journal port.PurchaseJournal, ledger port.LedgerRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()

	logger := log.WithFields(log.Fields{
		"worker":      id,
		"purchase_id": record.ID,
		"product_id":  record.ProductID,
	})

	if err := journal.RecordPurchase(ctx, record); err != nil {
		logger.WithError(err).Error("failed to save purchase")

		if _, rollbackErr := ledger.Increment(ctx, record.ProductID, record.Quantity); rollbackErr != nil {
			logger.WithError(rollbackErr).Error("CRITICAL: rollback failed")
		} else {
			logger.Warn("rolled back stock for purchase")
		}
		return
	}

	logger.Debug("saved purchase")
}
