package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

// idAllocationAttempts bounds how often a generated product id may collide
// with a concurrently created one.
const idAllocationAttempts = 3

type ProductRecord = domain.Record[domain.Product]

type ProductService struct {
	store *OptimisticStore[domain.Product]
}

func NewProductService(repo port.VersionedRepository[domain.Product]) *ProductService {
	return &ProductService{store: NewOptimisticStore[domain.Product](repo).WithValidator(validateProduct)}
}

// Create stores a new product. A zero id lets the repository assign one.
func (s *ProductService) Create(ctx context.Context, id int64, product domain.Product) (ProductRecord, error) {
	if err := validateProduct(product); err != nil {
		return ProductRecord{}, err
	}
	if id < 0 {
		return ProductRecord{}, errors.Wrap(domain.ErrInvalidPayload, "id must not be negative")
	}
	if id > 0 {
		return s.store.Create(ctx, FormatID(id), product)
	}

	var err error
	for attempt := 0; attempt < idAllocationAttempts; attempt++ {
		var rec ProductRecord
		rec, err = s.store.Create(ctx, "", product)
		if !errors.Is(err, domain.ErrDuplicateIdentity) {
			return rec, err
		}
	}
	return ProductRecord{}, err
}

func (s *ProductService) Get(ctx context.Context, id int64) (ProductRecord, error) {
	return s.store.Fetch(ctx, FormatID(id))
}

func (s *ProductService) Update(ctx context.Context, id int64, token string, product domain.Product) (ProductRecord, error) {
	return s.store.Update(ctx, FormatID(id), token, product)
}

func (s *ProductService) Delete(ctx context.Context, id int64, token string) error {
	return s.store.Delete(ctx, FormatID(id), token)
}

func validateProduct(p domain.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.Wrap(domain.ErrInvalidPayload, "name is required")
	}
	if p.Quantity < 0 {
		return errors.Wrap(domain.ErrInvalidPayload, "quantity cannot be negative")
	}
	return nil
}

// FormatID renders a numeric identity the way repositories store it.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID is the inverse of FormatID.
func ParseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(domain.ErrNotFound, "id %q", id)
	}
	return n, nil
}
