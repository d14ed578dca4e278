package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pointsledger/pointsledger/internal/domain"
)

// ─── Ledger Handlers ────────────────────────────────────────────────────────
//
// POST /points        ingest a batch of transactions (all-or-nothing)
// GET  /balance       points per payer
// PUT  /spend         spend points oldest-first across payers
// GET  /balance_times raw stored records

// pointRequest is one incoming transaction.
type pointRequest struct {
	Payer     string    `json:"payer" validate:"required"`
	Amount    *int64    `json:"amount" validate:"required"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// spendRequest is the PUT /spend body.
type spendRequest struct {
	Points *int64 `json:"points" validate:"required"`
}

// recordResponse is one stored record as listed by GET /balance_times.
type recordResponse struct {
	ID        string    `json:"id"`
	Payer     string    `json:"payer"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// handleAddPoints ingests a batch of point transactions.
// POST /points
func (s *Server) handleAddPoints(w http.ResponseWriter, r *http.Request) {
	var reqs []pointRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	records := make([]domain.PointRecord, 0, len(reqs))
	for _, req := range reqs {
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		records = append(records, domain.PointRecord{
			Payer:     req.Payer,
			Amount:    *req.Amount,
			Timestamp: req.Timestamp,
		})
	}

	if err := s.ledger.Ingest(r.Context(), records); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// handleBalance returns points per payer.
// GET /balance
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balances, ok, err := s.ledger.Balances(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if !ok {
		if s.legacyEmptyBalance {
			writeJSON(w, http.StatusOK, map[string]int64{legacyNoPointsPayer: legacyNoPointsAmount})
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

// handleSpend spends points oldest-first.
// PUT /spend
func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	var req spendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	results, err := s.ledger.Spend(r.Context(), *req.Points)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleRecords lists the stored records.
// GET /balance_times
func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.ledger.Records(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	out := make([]recordResponse, len(records))
	for i, rec := range records {
		out[i] = recordResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}
