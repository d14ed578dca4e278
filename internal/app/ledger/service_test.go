package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/pointsledger/pointsledger/internal/domain"
	"github.com/pointsledger/pointsledger/internal/infra/memstore"
	"github.com/pointsledger/pointsledger/internal/infra/observability"
	"github.com/pointsledger/pointsledger/internal/infra/sqlite"
	"github.com/pointsledger/pointsledger/internal/infra/storetest"
)

// backends returns one fresh store per backend so every service test
// runs against both the in-memory and the durable implementation.
func backends() map[string]storetest.Factory {
	return map[string]storetest.Factory{
		"memory": func(t *testing.T) domain.RecordStore { return memstore.New() },
		"sqlite": func(t *testing.T) domain.RecordStore {
			db, err := sqlite.Open(t.TempDir())
			require.NoError(t, err)
			t.Cleanup(func() { db.Close() })
			return db
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store domain.RecordStore)) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func seed(t *testing.T, store domain.RecordStore, records []domain.PointRecord) {
	t.Helper()
	require.NoError(t, store.Store(context.Background(), records))
}

func read(t *testing.T, store domain.RecordStore) []domain.PointRecord {
	t.Helper()
	records, err := store.Read(context.Background())
	require.NoError(t, err)
	return records
}

// ─── Ingest ─────────────────────────────────────────────────────────────────

func TestService_Ingest_Commits(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		svc := NewService(store, WithIDGenerator(sequentialIDs()))
		err := svc.Ingest(context.Background(), []domain.PointRecord{
			{Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T15:00:00Z")},
			{Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T10:00:00Z")},
		})
		require.NoError(t, err)

		got := read(t, store)
		require.Len(t, got, 1)
		assert.Equal(t, "id-1", got[0].ID)
		assert.Equal(t, int64(2), got[0].Amount)
		assert.True(t, got[0].Timestamp.Equal(storetest.At(t, "2020-04-15T10:00:00Z")))
	})
}

func TestService_Ingest_AtomicOnNegativeBalance(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		ctx := context.Background()
		svc := NewService(store)

		// Rejected into an empty ledger: nothing is written.
		err := svc.Ingest(ctx, []domain.PointRecord{
			{Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T15:00:00Z")},
			{Payer: "B", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T20:00:00Z")},
			{Payer: "A", Amount: -3, Timestamp: storetest.At(t, "2020-04-15T10:00:00Z")},
			{Payer: "B", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T21:00:00Z")},
			{Payer: "C", Amount: 1, Timestamp: storetest.At(t, "2020-04-16T09:00:00Z")},
		})
		require.ErrorIs(t, err, domain.ErrNegativeBalance)
		assert.Empty(t, read(t, store))

		// Rejected on top of existing data: the store is untouched.
		require.NoError(t, svc.Ingest(ctx, []domain.PointRecord{
			{Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T15:00:00Z")},
			{Payer: "B", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T20:00:00Z")},
		}))
		before := read(t, store)

		err = svc.Ingest(ctx, []domain.PointRecord{
			{Payer: "A", Amount: -3, Timestamp: storetest.At(t, "2020-04-15T10:00:00Z")},
			{Payer: "B", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T21:00:00Z")},
			{Payer: "C", Amount: 1, Timestamp: storetest.At(t, "2020-04-16T09:00:00Z")},
		})
		require.ErrorIs(t, err, domain.ErrNegativeBalance)
		storetest.AssertSameRecords(t, before, read(t, store))
	})
}

func TestService_Ingest_InvalidRecord(t *testing.T) {
	tests := []struct {
		name   string
		record domain.PointRecord
	}{
		{"empty payer", domain.PointRecord{Amount: 1, Timestamp: storetest.At(t, "2020-04-15T15:00:00Z")}},
		{"zero timestamp", domain.PointRecord{Payer: "A", Amount: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memstore.New()
			svc := NewService(store)
			err := svc.Ingest(context.Background(), []domain.PointRecord{tt.record})
			require.ErrorIs(t, err, domain.ErrInvalidRecord)
			assert.Empty(t, read(t, store))
		})
	}
}

func TestService_Ingest_EmptyBatch(t *testing.T) {
	store := memstore.New()
	seed(t, store, storetest.Fixture(t))
	svc := NewService(store)

	require.NoError(t, svc.Ingest(context.Background(), nil))
	storetest.AssertSameRecords(t, storetest.Fixture(t), read(t, store))
}

// ─── Balances ───────────────────────────────────────────────────────────────

func TestService_Balances(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		records := []domain.PointRecord{
			{ID: "1", Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-10T15:00:00Z")},
			{ID: "2", Payer: "B", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T20:00:00Z")},
			{ID: "3", Payer: "C", Amount: 3, Timestamp: storetest.At(t, "2020-04-16T09:00:00Z")},
			{ID: "4", Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T10:00:00Z")},
		}
		seed(t, store, records)
		svc := NewService(store)

		got, ok, err := svc.Balances(context.Background())
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.Balances{"A": 2, "B": 1, "C": 3}, got)

		// Balance is read-only.
		storetest.AssertSameRecords(t, records, read(t, store))
	})
}

func TestService_Balances_Empty(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		got, ok, err := NewService(store).Balances(context.Background())
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, got)
	})
}

// ─── Spend ──────────────────────────────────────────────────────────────────

func TestService_Spend_OldestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		seed(t, store, storetest.Fixture(t))
		svc := NewService(store)

		results, err := svc.Spend(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, []domain.SpendResult{
			{Payer: "A", Points: -1},
			{Payer: "D", Points: -1},
			{Payer: "B", Points: -1},
		}, results)

		amounts := map[string]int64{}
		for _, r := range read(t, store) {
			amounts[r.Payer] = r.Amount
		}
		assert.Equal(t, map[string]int64{"A": 0, "D": 0, "B": 1, "C": 3}, amounts)

		// Exhausted records sink behind live ones on the next spend.
		results, err = svc.Spend(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, []domain.SpendResult{
			{Payer: "B", Points: -1},
			{Payer: "C", Points: -1},
		}, results)
	})
}

func TestService_Spend_FailuresLeaveStoreUntouched(t *testing.T) {
	tests := []struct {
		name    string
		points  int64
		wantErr error
	}{
		{"zero", 0, domain.ErrNoPointsRequested},
		{"negative", -10, domain.ErrNoPointsRequested},
		{"too many", 8, domain.ErrInsufficientFunds},
	}

	forEachBackend(t, func(t *testing.T, store domain.RecordStore) {
		seed(t, store, storetest.Fixture(t))
		svc := NewService(store)

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				results, err := svc.Spend(context.Background(), tt.points)
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, results)
				storetest.AssertSameRecords(t, storetest.Fixture(t), read(t, store))
			})
		}
	})
}

func TestService_Spend_EmptyLedger(t *testing.T) {
	_, err := NewService(memstore.New()).Spend(context.Background(), 2)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestService_Spend_ConcurrentNoDoubleSpend(t *testing.T) {
	store := memstore.New()
	seed(t, store, storetest.Fixture(t)) // 7 points total
	svc := NewService(store)

	const spenders = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < spenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Spend(context.Background(), 1); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, succeeded)
	bal, ok, err := svc.Balances(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), bal.Total())
}

// ─── Records ────────────────────────────────────────────────────────────────

func TestService_Records(t *testing.T) {
	store := memstore.New()
	seed(t, store, storetest.Fixture(t))

	got, err := NewService(store).Records(context.Background())
	require.NoError(t, err)
	storetest.AssertSameRecords(t, storetest.Fixture(t), got)
}

// ─── Store Failures ─────────────────────────────────────────────────────────

type failingStore struct {
	domain.RecordStore
	readErr  error
	storeErr error
}

func (f *failingStore) Read(ctx context.Context) ([]domain.PointRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.RecordStore.Read(ctx)
}

func (f *failingStore) ReadSorted(ctx context.Context, cmp domain.Comparator) ([]domain.PointRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.RecordStore.ReadSorted(ctx, cmp)
}

func (f *failingStore) Store(ctx context.Context, records []domain.PointRecord) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	return f.RecordStore.Store(ctx, records)
}

func TestService_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk full")
	inner := memstore.New()
	seed(t, inner, storetest.Fixture(t))

	svc := NewService(&failingStore{RecordStore: inner, storeErr: boom})
	_, err := svc.Spend(context.Background(), 1)
	require.ErrorIs(t, err, boom)
	err = svc.Ingest(context.Background(), []domain.PointRecord{
		{Payer: "A", Amount: 1, Timestamp: storetest.At(t, "2020-04-15T15:00:00Z")},
	})
	require.ErrorIs(t, err, boom)
	storetest.AssertSameRecords(t, storetest.Fixture(t), read(t, inner))

	svc = NewService(&failingStore{RecordStore: inner, readErr: boom})
	_, _, err = svc.Balances(context.Background())
	require.ErrorIs(t, err, boom)
	_, err = svc.Records(context.Background())
	require.ErrorIs(t, err, boom)
}

// ─── Tracing ────────────────────────────────────────────────────────────────

func TestService_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	store := memstore.New()
	seed(t, store, storetest.Fixture(t))
	svc := NewService(store, WithTracer(provider.Tracer("test")))

	_, err := svc.Spend(context.Background(), 1)
	require.NoError(t, err)
	_, err = svc.Spend(context.Background(), 100)
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ledger.Spend", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestService_Ingest_PointsCreditedCountsPositiveNet(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	seed(t, store, []domain.PointRecord{
		{ID: "x", Payer: "A", Amount: 10, Timestamp: storetest.At(t, "2020-04-15T08:00:00Z")},
	})
	svc := NewService(store)

	before := testutil.ToFloat64(observability.PointsCredited)
	require.NoError(t, svc.Ingest(ctx, []domain.PointRecord{
		{Payer: "A", Amount: 5, Timestamp: storetest.At(t, "2020-04-15T09:00:00Z")},
		{Payer: "B", Amount: 2, Timestamp: storetest.At(t, "2020-04-15T09:00:00Z")},
		{Payer: "A", Amount: -3, Timestamp: storetest.At(t, "2020-04-15T10:00:00Z")},
	}))
	assert.Equal(t, before+4, testutil.ToFloat64(observability.PointsCredited), "net of +5, +2, -3")

	require.NoError(t, svc.Ingest(ctx, []domain.PointRecord{
		{Payer: "A", Amount: -6, Timestamp: storetest.At(t, "2020-04-15T11:00:00Z")},
	}))
	assert.Equal(t, before+4, testutil.ToFloat64(observability.PointsCredited), "negative net adds nothing")
}
