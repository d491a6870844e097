// Package metrics exposes Prometheus counters for catalog operations. Label
// values come from fixed sets so cardinality stays bounded.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/catalog/internal/core/domain"
	"github.com/rl1809/catalog/internal/port"
)

const (
	OutcomeOK                = "ok"
	OutcomeNotFound          = "not_found"
	OutcomeDuplicate         = "duplicate"
	OutcomeConflict          = "conflict"
	OutcomeMalformedToken    = "malformed_token"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeInvalid           = "invalid"
	OutcomeError             = "error"
)

var (
	operationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_operations_total",
		Help: "Catalog operations by resource, operation and outcome",
	}, []string{"resource", "operation", "outcome"})

	operationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_operation_duration_seconds",
		Help:    "Latency of catalog operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource", "operation"})

	journalWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_purchase_journal_writes_total",
		Help: "Purchase journal writes by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(operationsTotal, operationDuration, journalWritesTotal)
}

// Observe records one finished operation.
func Observe(resource, operation string, started time.Time, err error) {
	operationsTotal.WithLabelValues(resource, operation, Outcome(err)).Inc()
	operationDuration.WithLabelValues(resource, operation).Observe(time.Since(started).Seconds())
}

// InstrumentedJournal counts writes going through the wrapped journal.
type InstrumentedJournal struct {
	next port.PurchaseJournal
}

func InstrumentJournal(next port.PurchaseJournal) *InstrumentedJournal {
	return &InstrumentedJournal{next: next}
}

func (j *InstrumentedJournal) RecordPurchase(ctx context.Context, record domain.PurchaseRecord) error {
	err := j.next.RecordPurchase(ctx, record)
	if err != nil {
		journalWritesTotal.WithLabelValues("failed").Inc()
		return err
	}
	journalWritesTotal.WithLabelValues(OutcomeOK).Inc()
	return nil
}

// Outcome maps an operation error onto a label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, domain.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, domain.ErrDuplicateIdentity), errors.Is(err, domain.ErrDuplicateRequest):
		return OutcomeDuplicate
	case errors.Is(err, domain.ErrVersionConflict):
		return OutcomeConflict
	case errors.Is(err, domain.ErrMalformedToken):
		return OutcomeMalformedToken
	case errors.Is(err, domain.ErrInsufficientStock):
		return OutcomeInsufficientStock
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrInvalidQuantity):
		return OutcomeInvalid
	default:
		return OutcomeError
	}
}

func Handler() http.Handler {
	return promhttp.Handler()
}
