package domain

// Product is the payload of a product record.
type Product struct {
	Name     string
	Quantity int64
}

func (p Product) Clone() Product { return p }
