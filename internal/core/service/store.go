package service

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

// OptimisticStore enforces version-match semantics on top of a
// VersionedRepository. Conflicts are reported to the caller, never retried.
type OptimisticStore[P domain.Payload[P]] struct {
	repo     port.VersionedRepository[P]
	validate func(P) error
}

func NewOptimisticStore[P domain.Payload[P]](repo port.VersionedRepository[P]) *OptimisticStore[P] {
	return &OptimisticStore[P]{repo: repo}
}

// WithValidator checks replacement payloads in Update once the record is
// known to exist and the token matches.
func (s *OptimisticStore[P]) WithValidator(fn func(P) error) *OptimisticStore[P] {
	s.validate = fn
	return s
}

// Create stores payload at version 1. An empty id asks the repository to
// allocate one.
func (s *OptimisticStore[P]) Create(ctx context.Context, id string, payload P) (domain.Record[P], error) {
	if id == "" {
		next, err := s.repo.NextID(ctx)
		if err != nil {
			return domain.Record[P]{}, errors.Wrap(err, "allocate id")
		}
		id = next
	}

	rec := domain.Record[P]{ID: id, Version: 1, Payload: payload.Clone()}
	if err := s.repo.Insert(ctx, rec); err != nil {
		return domain.Record[P]{}, err
	}
	return rec, nil
}

func (s *OptimisticStore[P]) Fetch(ctx context.Context, id string) (domain.Record[P], error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the payload if token still names the stored version.
func (s *OptimisticStore[P]) Update(ctx context.Context, id, token string, payload P) (domain.Record[P], error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Record[P]{}, err
	}

	expected, err := expectVersion(current.Version, token)
	if err != nil {
		return domain.Record[P]{}, err
	}
	if s.validate != nil {
		if err := s.validate(payload); err != nil {
			return domain.Record[P]{}, err
		}
	}

	return s.repo.CompareAndSwap(ctx, id, expected, payload.Clone())
}

// Delete removes the record if token still names the stored version.
func (s *OptimisticStore[P]) Delete(ctx context.Context, id, token string) error {
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

// expectVersion decodes token and checks it against the version just read.
// The repository re-checks atomically on write.
func expectVersion(current int64, token string) (int64, error) {
	expected, err := domain.DecodeToken(token)
	if err != nil {
		return 0, err
	}
	if expected != current {
		return 0, errors.Wrapf(domain.ErrVersionConflict, "expected version %d, stored %d", expected, current)
	}
	return expected, nil
}
