package sqlite

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// ─── Record Store Operations ────────────────────────────────────────────────

// Read returns all records in stored order.
func (db *DB) Read(ctx context.Context) ([]domain.PointRecord, error) {
	rows, err := db.db.QueryContext(ctx, `
		SELECT id, payer, amount, timestamp
		FROM point_records ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []domain.PointRecord{}
	for rows.Next() {
		var r domain.PointRecord
		var ts string
		if err := rows.Scan(&r.ID, &r.Payer, &r.Amount, &ts); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		// The stored text keeps the caller's offset, so calendar dates
		// come back exactly as they were ingested.
		r.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ReadSorted returns all records stably sorted by cmp (spend order if nil).
func (db *DB) ReadSorted(ctx context.Context, cmp domain.Comparator) ([]domain.PointRecord, error) {
	if cmp == nil {
		cmp = domain.CompareSpendOrder
	}
	records, err := db.Read(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(records, cmp)
	return records, nil
}

// Store replaces every record in one transaction.
func (db *DB) Store(ctx context.Context, records []domain.PointRecord) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM point_records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO point_records (position, id, payer, amount, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		ts := r.Timestamp.Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx, i, r.ID, r.Payer, r.Amount, ts); err != nil {
			return fmt.Errorf("insert record %d (%s): %w", i, r.Payer, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of stored records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM point_records`).Scan(&n)
	return n, err
}
