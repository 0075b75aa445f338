package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/card-ledger/internal/api/middleware"
	"github.com/dvloznov/card-ledger/internal/domain"
	"github.com/dvloznov/card-ledger/internal/ledger"
)

// TransactionsHandler handles transaction CRUD and query endpoints.
type TransactionsHandler struct {
	repo *ledger.Repository
	log  zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(repo *ledger.Repository, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		repo: repo,
		log:  log,
	}
}

// List handles GET /api/transactions.
//
// Supported filters (query parameters): year+month, year, from+to (RFC 3339
// or YYYY-MM-DD, both required together), institution_id or institution_ids
// (comma-separated, only with from+to), account_id. institution_id and
// account_id combine with the month and range filters. Without filters it
// returns the full ledger.
func (h *TransactionsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txs, err := h.query(r)
	if err != nil {
		var badReq *badRequestError
		if errors.As(err, &badReq) {
			middleware.WriteError(w, http.StatusBadRequest, badReq.msg)
			return
		}
		h.log.Error().Err(err).Msg("Failed to list transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
		return
	}
	if txs == nil {
		var qerr error
		txs, qerr = h.repo.FindAll(ctx)
		if qerr != nil {
			h.log.Error().Err(qerr).Msg("Failed to list transactions")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to list transactions")
			return
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// badRequestError marks a filter-parsing failure so List can map it to 400
// while storage failures stay 500.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string {
	return e.msg
}

// query resolves the filter combination to a repository call. Institution and
// account predicates combine with the month and date-range filters. A nil,
// nil return means "no filter given".
func (h *TransactionsHandler) query(r *http.Request) ([]domain.Transaction, error) {
	ctx := r.Context()
	q := r.URL.Query()

	if yearStr := q.Get("year"); yearStr != "" {
		year, err := strconv.Atoi(yearStr)
		if err != nil {
			return nil, &badRequestError{msg: "year must be numeric"}
		}
		var (
			txs  []domain.Transaction
			qerr error
		)
		if monthStr := q.Get("month"); monthStr != "" {
			month, merr := strconv.Atoi(monthStr)
			if merr != nil || month < 1 || month > 12 {
				return nil, &badRequestError{msg: "month must be between 1 and 12"}
			}
			txs, qerr = h.repo.FindByMonth(ctx, year, time.Month(month))
		} else {
			txs, qerr = h.repo.FindByYear(ctx, year)
		}
		if qerr != nil {
			return nil, qerr
		}
		return narrow(txs, q.Get("institution_id"), q.Get("account_id")), nil
	}

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		if from == "" || to == "" {
			return nil, &badRequestError{msg: "from and to must be given together"}
		}
		start, err := parseDate(from, false)
		if err != nil {
			return nil, &badRequestError{msg: "from must be RFC 3339 or YYYY-MM-DD"}
		}
		end, err := parseDate(to, true)
		if err != nil {
			return nil, &badRequestError{msg: "to must be RFC 3339 or YYYY-MM-DD"}
		}

		var txs []domain.Transaction
		if ids := q.Get("institution_ids"); ids != "" {
			txs, err = h.repo.FindByInstitutionIDsAndDateRange(ctx, splitIDs(ids), start, end)
		} else if id := q.Get("institution_id"); id != "" {
			txs, err = h.repo.FindByInstitutionIDsAndDateRange(ctx, []string{id}, start, end)
		} else {
			txs, err = h.repo.FindByDateRange(ctx, start, end)
		}
		if err != nil {
			return nil, err
		}
		return narrow(txs, "", q.Get("account_id")), nil
	}

	if id := q.Get("institution_id"); id != "" {
		return h.repo.FindByInstitutionID(ctx, id)
	}
	if id := q.Get("account_id"); id != "" {
		return h.repo.FindByAccountID(ctx, id)
	}
	return nil, nil
}

// narrow applies the institution and account predicates on top of a month or
// date-range result.
func narrow(txs []domain.Transaction, institutionID, accountID string) []domain.Transaction {
	if institutionID == "" && accountID == "" {
		return txs
	}
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if institutionID != "" && tx.InstitutionID != institutionID {
			continue
		}
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// Get handles GET /api/transactions/{id}.
func (h *TransactionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	tx, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to look up transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to look up transaction")
		return
	}
	if tx == nil {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Create handles POST /api/transactions.
func (h *TransactionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if tx.Date.IsZero() {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now

	if err := h.repo.Save(r.Context(), tx); err != nil {
		h.log.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to save transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, tx)
}

// CreateBatch handles POST /api/transactions/batch.
func (h *TransactionsHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var txs []domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&txs); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	now := time.Now().UTC()
	for i := range txs {
		if txs[i].Date.IsZero() {
			middleware.WriteError(w, http.StatusBadRequest, "every transaction needs a date")
			return
		}
		if txs[i].ID == "" {
			txs[i].ID = uuid.New().String()
		}
		txs[i].CreatedAt = now
		txs[i].UpdatedAt = now
	}

	if err := h.repo.SaveMany(r.Context(), txs); err != nil {
		h.log.Error().Err(err).Int("count", len(txs)).Msg("Failed to save transaction batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save transactions")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// Update handles PUT /api/transactions/{id}. The stored entry is fully
// replaced. Moving a transaction to a different month is not supported here;
// delete and re-create instead.
func (h *TransactionsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tx.ID = id
	if tx.Date.IsZero() {
		middleware.WriteError(w, http.StatusBadRequest, "date is required")
		return
	}

	existing, err := h.repo.FindByID(ctx, id)
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to look up transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update transaction")
		return
	}
	if existing == nil {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if ledger.KeyForDate(tx.Date) != ledger.KeyForDate(existing.Date) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "Changing the transaction month is not supported; delete and re-create instead")
		return
	}

	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = time.Now().UTC()

	if err := h.repo.Update(ctx, tx); err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to update transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

// Delete handles DELETE /api/transactions/{id}.
func (h *TransactionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
			return
		}
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to delete transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to delete transaction")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnreconciledTransfers handles GET /api/transactions/unreconciled-transfers.
func (h *TransactionsHandler) UnreconciledTransfers(w http.ResponseWriter, r *http.Request) {
	txs, err := h.repo.FindUnreconciledTransfers(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list unreconciled transfers")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list unreconciled transfers")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func splitIDs(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
