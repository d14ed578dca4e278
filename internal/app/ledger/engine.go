package ledger

import (
	"fmt"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// ─── Pure Ledger Logic ──────────────────────────────────────────────────────
// These functions never touch the store. They take a private snapshot and
// return a new one; the Service decides whether to commit it.

// Merge folds incoming transactions into a snapshot, in input order.
//
// A transaction whose (payer, calendar date) matches an existing record is
// added to that record, and moves its timestamp earlier if it is older.
// Otherwise it becomes a new record with an ID from newID. The merged
// snapshot is rejected with ErrNegativeBalance if any record, touched or not,
// ends up negative.
func Merge(snapshot, incoming []domain.PointRecord, newID func() string) ([]domain.PointRecord, error) {
	working := make([]domain.PointRecord, len(snapshot), len(snapshot)+len(incoming))
	copy(working, snapshot)

	for _, in := range incoming {
		if i := indexOfKey(working, in); i >= 0 {
			working[i].Amount += in.Amount
			if in.Timestamp.Before(working[i].Timestamp) {
				working[i].Timestamp = in.Timestamp
			}
			continue
		}
		in.ID = newID()
		working = append(working, in)
	}

	for _, r := range working {
		if r.Amount < 0 {
			return nil, fmt.Errorf("%w: %s", domain.ErrNegativeBalance, r.Payer)
		}
	}
	return working, nil
}

func indexOfKey(records []domain.PointRecord, r domain.PointRecord) int {
	for i := range records {
		if records[i].SameKey(r) {
			return i
		}
	}
	return -1
}

// Aggregate sums amounts per payer. ok is false when there are no records,
// which is distinct from payers whose balances are all zero.
func Aggregate(records []domain.PointRecord) (balances domain.Balances, ok bool) {
	if len(records) == 0 {
		return nil, false
	}
	balances = make(domain.Balances)
	for _, r := range records {
		balances[r.Payer] += r.Amount
	}
	return balances, true
}

// Debit spends points from a snapshot already in spend order.
//
// It consumes a contiguous prefix of positive records, oldest first, and
// stops at the first record with a non-positive amount. One SpendResult is
// emitted per record touched. The input slice is not modified.
func Debit(sorted []domain.PointRecord, points int64) ([]domain.PointRecord, []domain.SpendResult, error) {
	if points <= 0 {
		return nil, nil, domain.ErrNoPointsRequested
	}

	working := make([]domain.PointRecord, len(sorted))
	copy(working, sorted)

	var results []domain.SpendResult
	for i := range working {
		r := &working[i]
		if points == 0 || r.Amount <= 0 {
			break
		}
		if r.Amount-points > 0 {
			results = append(results, domain.SpendResult{Payer: r.Payer, Points: -points})
			r.Amount -= points
			points = 0
			break
		}
		results = append(results, domain.SpendResult{Payer: r.Payer, Points: -r.Amount})
		points -= r.Amount
		r.Amount = 0
	}

	if points > 0 {
		return nil, nil, fmt.Errorf("%w: %d points short", domain.ErrInsufficientFunds, points)
	}
	return working, results, nil
}
