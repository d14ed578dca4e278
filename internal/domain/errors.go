package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.
// Every one of them leaves the record store exactly as it was.

var (
	// Ingest errors
	ErrNegativeBalance = errors.New("payer has a negative balance")
	ErrInvalidRecord   = errors.New("invalid point record")

	// Spend errors
	ErrNoPointsRequested = errors.New("no points requested")
	ErrInsufficientFunds = errors.New("insufficient points to spend")
)
