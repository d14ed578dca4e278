// Package domain contains pure business types with ZERO infrastructure imports.
// It is the innermost ring of the ledger and imports only the standard library.
package domain

import (
	"strings"
	"time"
)

// ─── Ledger Records ─────────────────────────────────────────────────────────

// PointRecord is one ledger line: points credited by a payer at a point in time.
// Incoming transactions for the same payer on the same calendar date are merged
// into a single record at ingest time.
type PointRecord struct {
	ID        string    `json:"id,omitempty"`
	Payer     string    `json:"payer" validate:"required"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// Day is the calendar date of a record, taken in the timestamp's own offset.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar date of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// Day returns the calendar date the record is keyed under.
func (r PointRecord) Day() Day { return DayOf(r.Timestamp) }

// SameKey reports whether two records share the (payer, calendar date) merge key.
func (r PointRecord) SameKey(o PointRecord) bool {
	return r.Payer == o.Payer && r.Day() == o.Day()
}

// SpendResult is one debit produced by a spend: the payer whose record was
// consumed and the (negative) number of points taken from it.
type SpendResult struct {
	Payer  string `json:"payer"`
	Points int64  `json:"points"`
}

// Balances maps payer → total points across all of the payer's records.
type Balances map[string]int64

// Total returns the sum of all payer balances.
func (b Balances) Total() int64 {
	var total int64
	for _, v := range b {
		total += v
	}
	return total
}

// ─── Ordering ───────────────────────────────────────────────────────────────

// Comparator orders two records the way slices.SortStableFunc expects.
type Comparator func(a, b PointRecord) int

// CompareSpendOrder is the natural spend ordering: oldest non-zero record first.
//
// Zero-amount records have no meaningful age for spending, so they sort after
// every non-zero record and are equivalent to each other. Callers must sort
// stably so equivalent records keep their insertion order.
func CompareSpendOrder(a, b PointRecord) int {
	aZero, bZero := a.Amount == 0, b.Amount == 0
	switch {
	case aZero && bZero:
		return 0
	case aZero:
		return 1
	case bZero:
		return -1
	}
	return a.Timestamp.Compare(b.Timestamp)
}

// CompareByPayer groups records by payer name.
func CompareByPayer(a, b PointRecord) int {
	return strings.Compare(a.Payer, b.Payer)
}

