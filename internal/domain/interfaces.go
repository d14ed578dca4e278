package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the ledger engine depends on them.

// RecordStore is a passive container for the full set of point records.
// It never applies business rules; the ledger validates before calling Store.
type RecordStore interface {
	// Read returns an independent copy of all records in stored order.
	Read(ctx context.Context) ([]PointRecord, error)

	// ReadSorted returns an independent copy stably sorted by cmp.
	// A nil cmp sorts by CompareSpendOrder.
	ReadSorted(ctx context.Context, cmp Comparator) ([]PointRecord, error)

	// Store atomically replaces the whole record set.
	Store(ctx context.Context, records []PointRecord) error
}
