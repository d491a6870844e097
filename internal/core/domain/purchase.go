package domain

import "time"

// PurchaseRecord is written to the purchase journal after a successful
// decrement.
type PurchaseRecord struct {
	ID        string
	RequestID string
	ProductID int64
	Quantity  int64
	Remaining int64
	CreatedAt time.Time
}
