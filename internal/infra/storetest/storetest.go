// Package storetest provides a conformance suite for domain.RecordStore
// implementations. Each backend runs it from its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.RecordStore

// At parses an RFC 3339 timestamp or fails the test.
func At(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

// Fixture returns the four-payer record set used across ledger tests:
// A=1 (04-10 15:00), B=2 (04-15 20:00), C=3 (04-16 09:00), D=1 (04-15 10:00).
func Fixture(t *testing.T) []domain.PointRecord {
	t.Helper()
	return []domain.PointRecord{
		{ID: "rec-a", Payer: "A", Amount: 1, Timestamp: At(t, "2020-04-10T15:00:00Z")},
		{ID: "rec-b", Payer: "B", Amount: 2, Timestamp: At(t, "2020-04-15T20:00:00Z")},
		{ID: "rec-c", Payer: "C", Amount: 3, Timestamp: At(t, "2020-04-16T09:00:00Z")},
		{ID: "rec-d", Payer: "D", Amount: 1, Timestamp: At(t, "2020-04-15T10:00:00Z")},
	}
}

// Run exercises the RecordStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("EmptyRead", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("StoreThenRead_PreservesOrderAndValues", func(t *testing.T) {
		s := newStore(t)
		want := Fixture(t)
		require.NoError(t, s.Store(ctx, want))

		got, err := s.Read(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, want, got)
	})

	t.Run("Read_ReturnsIndependentCopies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Store(ctx, Fixture(t)))

		first, err := s.Read(ctx)
		require.NoError(t, err)
		second, err := s.Read(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, first, second)

		first[0].Amount = 999
		first[1].Payer = "mutated"

		third, err := s.Read(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, second, third)
	})

	t.Run("Store_CopiesInput", func(t *testing.T) {
		s := newStore(t)
		in := Fixture(t)
		require.NoError(t, s.Store(ctx, in))
		in[0].Amount = 42

		got, err := s.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got[0].Amount)
	})

	t.Run("Store_ReplacesWholeSet", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Store(ctx, Fixture(t)))

		replacement := []domain.PointRecord{
			{ID: "rec-z", Payer: "Z", Amount: 7, Timestamp: At(t, "2021-01-01T00:00:00Z")},
		}
		require.NoError(t, s.Store(ctx, replacement))

		got, err := s.Read(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, replacement, got)

		require.NoError(t, s.Store(ctx, nil))
		got, err = s.Read(ctx)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("ReadSorted_DefaultIsSpendOrder", func(t *testing.T) {
		s := newStore(t)
		records := Fixture(t)
		records = append(records, domain.PointRecord{
			ID: "rec-e", Payer: "E", Amount: 0, Timestamp: At(t, "2019-01-01T00:00:00Z"),
		})
		require.NoError(t, s.Store(ctx, records))

		got, err := s.ReadSorted(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "D", "B", "C", "E"}, Payers(got))
	})

	t.Run("ReadSorted_ByPayerIsStable", func(t *testing.T) {
		s := newStore(t)
		records := []domain.PointRecord{
			{ID: "1", Payer: "B", Amount: 1, Timestamp: At(t, "2020-04-15T20:00:00Z")},
			{ID: "2", Payer: "A", Amount: 1, Timestamp: At(t, "2020-04-15T10:00:00Z")},
			{ID: "3", Payer: "B", Amount: 2, Timestamp: At(t, "2020-04-10T10:00:00Z")},
			{ID: "4", Payer: "A", Amount: 3, Timestamp: At(t, "2020-04-11T10:00:00Z")},
		}
		require.NoError(t, s.Store(ctx, records))

		got, err := s.ReadSorted(ctx, domain.CompareByPayer)
		require.NoError(t, err)
		ids := make([]string, len(got))
		for i, r := range got {
			ids[i] = r.ID
		}
		assert.Equal(t, []string{"2", "4", "1", "3"}, ids)

		// Sorting must not reorder the stored set.
		raw, err := s.Read(ctx)
		require.NoError(t, err)
		AssertSameRecords(t, records, raw)
	})

	t.Run("Timestamp_KeepsOffset", func(t *testing.T) {
		s := newStore(t)
		ts := At(t, "2020-04-15T23:30:00-05:00")
		require.NoError(t, s.Store(ctx, []domain.PointRecord{
			{ID: "1", Payer: "A", Amount: 1, Timestamp: ts},
		}))

		got, err := s.Read(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[0].Timestamp.Equal(ts))
		assert.Equal(t, domain.DayOf(ts), got[0].Day())
	})
}

// AssertSameRecords compares two record lists field by field, treating
// timestamps as equal when they denote the same instant.
func AssertSameRecords(t *testing.T, want, got []domain.PointRecord) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ID, got[i].ID, "record %d id", i)
		assert.Equal(t, want[i].Payer, got[i].Payer, "record %d payer", i)
		assert.Equal(t, want[i].Amount, got[i].Amount, "record %d amount", i)
		assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp),
			"record %d timestamp = %v, want %v", i, got[i].Timestamp, want[i].Timestamp)
	}
}

// Payers lists the payer of each record in order.
func Payers(records []domain.PointRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Payer
	}
	return out
}
