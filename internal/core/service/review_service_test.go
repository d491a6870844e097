package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/catalog/internal/adapter/storage"
	"github.com/rl1809/catalog/internal/core/domain"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)

func setupReviews(t *testing.T) (*ReviewService, context.Context) {
	t.Helper()
	svc := NewReviewService(storage.NewMemoryReviewRepository())
	svc.now = func() time.Time { return fixedNow }
	return svc, context.Background()
}

func TestReviewCreate(t *testing.T) {
	svc, ctx := setupReviews(t)

	rec, err := svc.Create(ctx, 100, domain.ReviewEntry{Username: "user1", Review: "great"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(1), rec.Version)
	require.Len(t, rec.Payload.Entries, 1)
	assert.Equal(t, fixedNow.Truncate(time.Millisecond), rec.Payload.Entries[0].Date)

	_, err = svc.Create(ctx, 100)
	assert.True(t, errors.Is(err, domain.ErrDuplicateIdentity))

	found, err := svc.FindByProductID(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, found.ID)
}

func TestReviewCreate_Validation(t *testing.T) {
	svc, ctx := setupReviews(t)

	_, err := svc.Create(ctx, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
	_, err = svc.Create(ctx, 1, domain.ReviewEntry{Username: "", Review: "x"})
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
	_, err = svc.Create(ctx, 1, domain.ReviewEntry{Username: "u", Review: "  "})
	assert.True(t, errors.Is(err, domain.ErrInvalidPayload))
}

func TestReviewAppend(t *testing.T) {
	svc, ctx := setupReviews(t)
	rec, err := svc.Create(ctx, 100)
	require.NoError(t, err)

	given := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := svc.Append(ctx, rec.ID, rec.Token(), domain.ReviewEntry{Username: "a", Review: "one", Date: given})
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Version)

	second, err := svc.Append(ctx, rec.ID, first.Token(), domain.ReviewEntry{Username: "b", Review: "two"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), second.Version)

	require.Len(t, second.Payload.Entries, 2)
	assert.Equal(t, "one", second.Payload.Entries[0].Review)
	assert.Equal(t, given, second.Payload.Entries[0].Date)
	assert.Equal(t, "two", second.Payload.Entries[1].Review)

	t.Run("Stale token", func(t *testing.T) {
		_, err := svc.Append(ctx, rec.ID, first.Token(), domain.ReviewEntry{Username: "c", Review: "lost"})
		assert.True(t, errors.Is(err, domain.ErrVersionConflict))

		current, err := svc.Get(ctx, rec.ID)
		require.NoError(t, err)
		assert.Len(t, current.Payload.Entries, 2)
	})

	t.Run("Malformed token", func(t *testing.T) {
		_, err := svc.Append(ctx, rec.ID, "nope", domain.ReviewEntry{Username: "c", Review: "x"})
		assert.True(t, errors.Is(err, domain.ErrMalformedToken))
	})

	t.Run("Empty token appends to current version", func(t *testing.T) {
		third, err := svc.Append(ctx, rec.ID, "", domain.ReviewEntry{Username: "c", Review: "three"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), third.Version)
		assert.Len(t, third.Payload.Entries, 3)
	})

	t.Run("Missing aggregate", func(t *testing.T) {
		_, err := svc.Append(ctx, "missing", "", domain.ReviewEntry{Username: "c", Review: "x"})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestReviewAppendForProduct(t *testing.T) {
	svc, ctx := setupReviews(t)
	_, err := svc.Create(ctx, 7)
	require.NoError(t, err)

	rec, err := svc.AppendForProduct(ctx, 7, "", domain.ReviewEntry{Username: "u", Review: "ok"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version)

	_, err = svc.AppendForProduct(ctx, 8, "", domain.ReviewEntry{Username: "u", Review: "ok"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestReviewAppend_ConcurrentSameTokenOneWinner(t *testing.T) {
	svc, ctx := setupReviews(t)
	rec, err := svc.Create(ctx, 1)
	require.NoError(t, err)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, rec.ID, rec.Token(), domain.ReviewEntry{Username: "u", Review: "r"})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrVersionConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(19), conflicts.Load())

	current, err := svc.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.Version)
	assert.Len(t, current.Payload.Entries, 1)
}

func TestReviewDelete(t *testing.T) {
	svc, ctx := setupReviews(t)
	rec, err := svc.Create(ctx, 5)
	require.NoError(t, err)
	appended, err := svc.Append(ctx, rec.ID, "", domain.ReviewEntry{Username: "u", Review: "r"})
	require.NoError(t, err)

	err = svc.Delete(ctx, rec.ID, rec.Token())
	assert.True(t, errors.Is(err, domain.ErrVersionConflict))

	require.NoError(t, svc.Delete(ctx, rec.ID, appended.Token()))
	_, err = svc.FindByProductID(ctx, 5)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// product can get a fresh aggregate afterwards
	_, err = svc.Create(ctx, 5)
	require.NoError(t, err)
}
