// Package ledger is the points ledger engine.
//
// Every operation is one synchronous transaction against the record store:
//  1. Read a private snapshot
//  2. Compute the new snapshot with the pure functions in engine.go
//  3. Commit it with a single Store call, only if nothing failed
//
// Ingest and spend hold the service's write lock across all three steps,
// so concurrent callers can never commit against a stale snapshot.
package ledger

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pointsledger/pointsledger/internal/domain"
	"github.com/pointsledger/pointsledger/internal/infra/observability"
)

const tracerName = "github.com/pointsledger/pointsledger/internal/app/ledger"

// Service runs ledger operations against a RecordStore.
type Service struct {
	mu       sync.RWMutex
	store    domain.RecordStore
	log      logrus.FieldLogger
	tracer   trace.Tracer
	validate *validator.Validate
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithIDGenerator overrides how new record IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a ledger service that owns store.
func NewService(store domain.RecordStore, opts ...Option) *Service {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Service{
		store:    store,
		log:      discard,
		tracer:   otel.Tracer(tracerName),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest merges a batch of transactions into the ledger.
// The batch is all-or-nothing: if any payer's record would end up negative,
// nothing is written and ErrNegativeBalance is returned.
func (s *Service) Ingest(ctx context.Context, incoming []domain.PointRecord) (err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Ingest",
		trace.WithAttributes(attribute.Int("ledger.batch_size", len(incoming))))
	defer func() { s.finish(span, observability.OpIngest, start, err) }()

	for i := range incoming {
		if err := s.validate.Struct(incoming[i]); err != nil {
			return fmt.Errorf("%w: transaction %d: %v", domain.ErrInvalidRecord, i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, err := s.store.Read(ctx)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	merged, err := Merge(snapshot, incoming, s.newID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"batch_size": len(incoming),
			"error":      err.Error(),
		}).Warn("ingest batch rejected")
		return err
	}

	if err := s.store.Store(ctx, merged); err != nil {
		return fmt.Errorf("commit ingest: %w", err)
	}

	var credited int64
	for _, r := range incoming {
		credited += r.Amount
	}
	if credited > 0 {
		observability.PointsCredited.Add(float64(credited))
	}
	observability.Records.Set(float64(len(merged)))

	s.log.WithFields(logrus.Fields{
		"batch_size": len(incoming),
		"records":    len(merged),
		"net_points": credited,
	}).Info("ingest committed")
	return nil
}

// Balances returns the total points per payer.
// ok is false when the ledger holds no records at all.
func (s *Service) Balances(ctx context.Context) (balances domain.Balances, ok bool, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Balances")
	defer func() { s.finish(span, observability.OpBalance, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.store.ReadSorted(ctx, domain.CompareByPayer)
	if err != nil {
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	balances, ok = Aggregate(records)
	span.SetAttributes(attribute.Int("ledger.payers", len(balances)))
	return balances, ok, nil
}

// Spend debits points oldest-first across all payers and returns one result
// per record consumed, in consumption order.
func (s *Service) Spend(ctx context.Context, points int64) (results []domain.SpendResult, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Spend",
		trace.WithAttributes(attribute.Int64("ledger.points", points)))
	defer func() { s.finish(span, observability.OpSpend, start, err) }()

	if points <= 0 {
		return nil, domain.ErrNoPointsRequested
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sorted, err := s.store.ReadSorted(ctx, domain.CompareSpendOrder)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	debited, results, err := Debit(sorted, points)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"points": points,
			"error":  err.Error(),
		}).Warn("spend rejected")
		return nil, err
	}

	if err := s.store.Store(ctx, debited); err != nil {
		return nil, fmt.Errorf("commit spend: %w", err)
	}

	observability.PointsSpent.Add(float64(points))
	observability.Records.Set(float64(len(debited)))

	s.log.WithFields(logrus.Fields{
		"points":  points,
		"debits":  len(results),
		"records": len(debited),
	}).Info("spend committed")
	return results, nil
}

// Records returns the raw stored records, in stored order.
func (s *Service) Records(ctx context.Context) (records []domain.PointRecord, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.Records")
	defer func() { s.finish(span, observability.OpRecords, start, err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err = s.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return records, nil
}

// finish closes an operation span and records its metrics.
func (s *Service) finish(span trace.Span, op string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("ledger.result", observability.ResultOf(err)))
	span.End()
	observability.Observe(op, start, err)
}
