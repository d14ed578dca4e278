// Package observability holds the ledger's Prometheus metrics.
//
// Every ledger operation reports:
//   - an outcome counter labelled by operation and result
//   - a latency histogram labelled by operation
//   - point flow counters (credited, spent)
//   - the current record count
package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// Operation names used as the "op" label.
const (
	OpIngest  = "ingest"
	OpBalance = "balance"
	OpSpend   = "spend"
	OpRecords = "records"
)

// Result label values.
const (
	ResultOK                = "ok"
	ResultNegativeBalance   = "negative_balance"
	ResultNoPointsRequested = "no_points_requested"
	ResultInsufficientFunds = "insufficient_funds"
	ResultInvalid           = "invalid"
	ResultError             = "error"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// LedgerOperations counts ledger operations by outcome.
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pointsledger",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Total ledger operations by operation and result.",
}, []string{"op", "result"})

// LedgerLatency tracks ledger operation latency.
var LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "pointsledger",
	Subsystem: "ledger",
	Name:      "operation_duration_seconds",
	Help:      "Ledger operation latency in seconds.",
	Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
}, []string{"op"})

// PointsCredited counts the net points of committed ingest batches.
// Batches whose net is zero or negative add nothing.
var PointsCredited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pointsledger",
	Subsystem: "ledger",
	Name:      "points_credited_total",
	Help:      "Total net points of committed ingest batches with a positive net.",
})

// PointsSpent counts points debited by successful spends.
var PointsSpent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "pointsledger",
	Subsystem: "ledger",
	Name:      "points_spent_total",
	Help:      "Total points debited by spend requests.",
})

// Records tracks the number of records held by the store after the last commit.
var Records = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "pointsledger",
	Subsystem: "ledger",
	Name:      "records",
	Help:      "Number of point records in the store.",
})

// ─── Helpers ────────────────────────────────────────────────────────────────

// ResultOf maps an operation error to its result label.
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, domain.ErrNegativeBalance):
		return ResultNegativeBalance
	case errors.Is(err, domain.ErrNoPointsRequested):
		return ResultNoPointsRequested
	case errors.Is(err, domain.ErrInsufficientFunds):
		return ResultInsufficientFunds
	case errors.Is(err, domain.ErrInvalidRecord):
		return ResultInvalid
	default:
		return ResultError
	}
}

// Observe records one finished operation.
func Observe(op string, start time.Time, err error) {
	LedgerOperations.WithLabelValues(op, ResultOf(err)).Inc()
	LedgerLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
