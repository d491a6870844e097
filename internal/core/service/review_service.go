package service

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

type ReviewRecord = domain.Record[domain.Review]

// ReviewService manages review aggregates. The only mutation besides delete
// is appending an entry, which bumps the version like a conditional update.
type ReviewService struct {
	repo port.ReviewRepository
	now  func() time.Time
}

func NewReviewService(repo port.ReviewRepository) *ReviewService {
	return &ReviewService{repo: repo, now: time.Now}
}

// Create starts the aggregate for productID. Initial entries are written
// directly at version 1.
func (s *ReviewService) Create(ctx context.Context, productID int64, entries ...domain.ReviewEntry) (ReviewRecord, error) {
	if productID <= 0 {
		return ReviewRecord{}, errors.Wrap(domain.ErrInvalidPayload, "productId is required")
	}

	review := domain.Review{ProductID: productID, Entries: make([]domain.ReviewEntry, 0, len(entries))}
	for _, e := range entries {
		prepared, err := s.prepareEntry(e)
		if err != nil {
			return ReviewRecord{}, err
		}
		review.Entries = append(review.Entries, prepared)
	}

	id, err := s.repo.NextID(ctx)
	if err != nil {
		return ReviewRecord{}, errors.Wrap(err, "allocate review id")
	}

	rec := ReviewRecord{ID: id, Version: 1, Payload: review}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return ReviewRecord{}, err
	}
	return rec, nil
}

func (s *ReviewService) Get(ctx context.Context, id string) (ReviewRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *ReviewService) FindByProductID(ctx context.Context, productID int64) (ReviewRecord, error) {
	return s.repo.FindByProductID(ctx, productID)
}

// Append adds entry to the end of the aggregate. An empty token appends
// against the version observed now; a concurrent append still surfaces as
// domain.ErrVersionConflict.
func (s *ReviewService) Append(ctx context.Context, id, token string, entry domain.ReviewEntry) (ReviewRecord, error) {
	entry, err := s.prepareEntry(entry)
	if err != nil {
		return ReviewRecord{}, err
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return ReviewRecord{}, err
	}
	return s.appendTo(ctx, current, token, entry)
}

// AppendForProduct resolves the aggregate by product id and appends to it.
func (s *ReviewService) AppendForProduct(ctx context.Context, productID int64, token string, entry domain.ReviewEntry) (ReviewRecord, error) {
	entry, err := s.prepareEntry(entry)
	if err != nil {
		return ReviewRecord{}, err
	}

	current, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		return ReviewRecord{}, err
	}
	return s.appendTo(ctx, current, token, entry)
}

func (s *ReviewService) Delete(ctx context.Context, id, token string) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	expected, err := expectVersion(current.Version, token)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, id, expected)
}

func (s *ReviewService) appendTo(ctx context.Context, current ReviewRecord, token string, entry domain.ReviewEntry) (ReviewRecord, error) {
	expected := current.Version
	if token != "" {
		v, err := expectVersion(current.Version, token)
		if err != nil {
			return ReviewRecord{}, err
		}
		expected = v
	}
	return s.repo.AppendEntry(ctx, current.ID, expected, entry)
}

func (s *ReviewService) prepareEntry(e domain.ReviewEntry) (domain.ReviewEntry, error) {
	if strings.TrimSpace(e.Username) == "" {
		return e, errors.Wrap(domain.ErrInvalidPayload, "username is required")
	}
	if strings.TrimSpace(e.Review) == "" {
		return e, errors.Wrap(domain.ErrInvalidPayload, "review is required")
	}
	if e.Date.IsZero() {
		e.Date = s.now()
	}
	e.Date = e.Date.UTC().Truncate(time.Millisecond)
	return e, nil
}
