package domain

// Inventory is the stock ledger for one product.
type Inventory struct {
	ProductID int64
	Quantity  int64
	Version   int64 // optimistic locking
}

func (i Inventory) Token() string {
	return EncodeToken(i.Version)
}
