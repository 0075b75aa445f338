package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/dvloznov/card-ledger/internal/api/middleware"
	"github.com/dvloznov/card-ledger/internal/reconcile"
)

var billingMonthRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// ReconciliationsHandler handles reconciliation endpoints.
type ReconciliationsHandler struct {
	engine  *reconcile.Engine
	reports reconcile.ReportStore
	log     zerolog.Logger
}

// NewReconciliationsHandler creates a new reconciliations handler.
func NewReconciliationsHandler(engine *reconcile.Engine, reports reconcile.ReportStore, log zerolog.Logger) *ReconciliationsHandler {
	return &ReconciliationsHandler{
		engine:  engine,
		reports: reports,
		log:     log,
	}
}

// Run handles POST /api/reconciliations. The run is synchronous: the response
// carries the freshly persisted report.
func (h *ReconciliationsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CardID       string `json:"card_id"`
		BillingMonth string `json:"billing_month"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.CardID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "card_id is required")
		return
	}
	if !billingMonthRe.MatchString(req.BillingMonth) {
		middleware.WriteError(w, http.StatusBadRequest, "billing_month must be formatted YYYY-MM")
		return
	}

	report, err := h.engine.Reconcile(r.Context(), req.CardID, req.BillingMonth)
	if err != nil {
		var confErr *reconcile.ConfigurationError
		if errors.As(err, &confErr) {
			middleware.WriteError(w, http.StatusUnprocessableEntity, confErr.Error())
			return
		}
		h.log.Error().Err(err).
			Str("card_id", req.CardID).
			Str("billing_month", req.BillingMonth).
			Msg("Reconciliation run failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Reconciliation run failed")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, report)
}

// List handles GET /api/reconciliations, optionally filtered by card_id.
func (h *ReconciliationsHandler) List(w http.ResponseWriter, r *http.Request) {
	cardID := r.URL.Query().Get("card_id")

	summaries, err := h.reports.List(r.Context(), cardID)
	if err != nil {
		h.log.Error().Err(err).Str("card_id", cardID).Msg("Failed to list reconciliations")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list reconciliations")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reconciliations": summaries,
		"count":           len(summaries),
	})
}

// Get handles GET /api/reconciliations/{id}.
func (h *ReconciliationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	report, err := h.reports.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, reconcile.ErrReportNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Reconciliation report not found")
			return
		}
		h.log.Error().Err(err).Str("reconciliation_id", id).Msg("Failed to fetch reconciliation report")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to fetch reconciliation report")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}
