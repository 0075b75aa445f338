package reconcile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dvloznov/card-ledger/internal/domain"
)

// DefaultTolerance bounds the amount difference accepted for a PARTIAL match.
// It absorbs rounding and small fee line-items; the production threshold is
// configurable per deployment.
const DefaultTolerance = 25.0

// exactEpsilon is the float comparison bound for an exact amount match.
const exactEpsilon = 1e-9

// TransactionSource is the slice of the ledger query engine the engine needs.
type TransactionSource interface {
	FindByInstitutionIDsAndDateRange(ctx context.Context, institutionIDs []string, start, end time.Time) ([]domain.Transaction, error)
	FindByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error)
	Update(ctx context.Context, tx domain.Transaction) error
}

// Engine matches a card's charges for one billing cycle against the linked
// bank account's withdrawals and produces an immutable report.
type Engine struct {
	ledger    TransactionSource
	reports   ReportStore
	cycles    CycleResolver
	tolerance float64
	log       zerolog.Logger
}

// NewEngine wires the engine. A non-positive tolerance falls back to
// DefaultTolerance.
func NewEngine(ledger TransactionSource, reports ReportStore, cycles CycleResolver, tolerance float64, log zerolog.Logger) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{
		ledger:    ledger,
		reports:   reports,
		cycles:    cycles,
		tolerance: tolerance,
		log:       log,
	}
}

// candidate is one bank withdrawal still available for matching.
type candidate struct {
	tx       domain.Transaction
	consumed bool
}

// Reconcile runs one reconciliation pass for (cardID, billingMonth).
//
// The run is all-or-nothing: a configuration failure or any ledger error
// aborts before any write, and an update failure aborts before the report is
// persisted, restoring any charges already flipped. Restoration is best
// effort; a re-run recomputes every match from the ledger, so a flag left
// behind by an aborted run cannot change later outcomes. Partial application
// would silently mark charges reconciled while losing the ability to
// recompute what changed, so it is treated as worse than outright failure.
func (e *Engine) Reconcile(ctx context.Context, cardID, billingMonth string) (*domain.ReconciliationReport, error) {
	cycle, err := e.cycles.ResolveCycle(ctx, cardID, billingMonth)
	if err != nil {
		return nil, err
	}

	charges, err := e.ledger.FindByInstitutionIDsAndDateRange(ctx, []string{cardID}, cycle.ChargeWindow.Start, cycle.ChargeWindow.End)
	if err != nil {
		return nil, fmt.Errorf("fetch charges for card %q: %w", cardID, err)
	}

	withdrawals, err := e.fetchWithdrawals(ctx, cycle)
	if err != nil {
		return nil, fmt.Errorf("fetch withdrawals for card %q: %w", cardID, err)
	}

	// Charges are processed in ascending date order (id as final tiebreak)
	// so repeated runs over an unchanged ledger match identically.
	sort.SliceStable(charges, func(i, j int) bool {
		if !charges[i].Date.Equal(charges[j].Date) {
			return charges[i].Date.Before(charges[j].Date)
		}
		return charges[i].ID < charges[j].ID
	})

	due := time.Date(cycle.PaymentDue.Year, cycle.PaymentDue.Month, cycle.PaymentDue.Day, 0, 0, 0, 0, time.UTC)

	records := make([]domain.MatchRecord, 0, len(charges))
	summary := domain.ReportSummary{Total: len(charges)}
	var matchedPairs []matchedPair

	for _, charge := range charges {
		record := domain.MatchRecord{
			CreditCardTransactionID: charge.ID,
			Outcome:                 domain.OutcomeUnmatched,
		}

		if idx := e.pick(withdrawals, charge, due, exactEpsilon); idx >= 0 {
			record.Outcome = domain.OutcomeMatched
			id := withdrawals[idx].tx.ID
			record.BankTransactionID = &id
			withdrawals[idx].consumed = true
			summary.Matched++
			matchedPairs = append(matchedPairs, matchedPair{charge: charge, withdrawalID: id})
		} else if idx := e.pick(withdrawals, charge, due, e.tolerance); idx >= 0 {
			record.Outcome = domain.OutcomePartial
			id := withdrawals[idx].tx.ID
			record.BankTransactionID = &id
			withdrawals[idx].consumed = true
			summary.Partial++
			matchedPairs = append(matchedPairs, matchedPair{charge: charge, withdrawalID: id})
		} else {
			summary.Unmatched++
		}

		records = append(records, record)
	}

	// Leftover withdrawals are not reported against a charge; they belong to
	// other tooling.

	if err := e.markReconciled(ctx, matchedPairs); err != nil {
		return nil, err
	}

	report := &domain.ReconciliationReport{
		ReconciliationID: uuid.New().String(),
		CardID:           cardID,
		BillingMonth:     billingMonth,
		ExecutedAt:       time.Now().UTC(),
		Status:           overallStatus(summary),
		Summary:          summary,
		Records:          records,
	}

	if err := e.reports.Append(ctx, report); err != nil {
		return nil, fmt.Errorf("persist report: %w", err)
	}

	e.log.Info().
		Str("reconciliation_id", report.ReconciliationID).
		Str("card_id", cardID).
		Str("billing_month", billingMonth).
		Str("status", string(report.Status)).
		Int("total", summary.Total).
		Int("matched", summary.Matched).
		Int("partial", summary.Partial).
		Int("unmatched", summary.Unmatched).
		Msg("Reconciliation run completed")

	return report, nil
}

// fetchWithdrawals pulls the linked account's TRANSFER/REPAYMENT transactions
// inside the payment window, sorted date-ascending (id tiebreak).
func (e *Engine) fetchWithdrawals(ctx context.Context, cycle Cycle) ([]candidate, error) {
	txs, err := e.ledger.FindByAccountID(ctx, cycle.BankAccountID)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for _, tx := range txs {
		if tx.Category.Type != domain.CategoryTransfer && tx.Category.Type != domain.CategoryRepayment {
			continue
		}
		if !cycle.PaymentWindow.Contains(tx.Date) {
			continue
		}
		out = append(out, candidate{tx: tx})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].tx.Date.Equal(out[j].tx.Date) {
			return out[i].tx.Date.Before(out[j].tx.Date)
		}
		return out[i].tx.ID < out[j].tx.ID
	})
	return out, nil
}

// pick selects the best unconsumed withdrawal whose absolute amount is within
// bound of the charge's absolute amount. Tie-break order: closest date to the
// expected payment date, then smallest amount difference, then first in
// date-ascending order.
func (e *Engine) pick(withdrawals []candidate, charge domain.Transaction, due time.Time, bound float64) int {
	best := -1
	var bestDateDist time.Duration
	var bestAmtDiff float64

	for i := range withdrawals {
		if withdrawals[i].consumed {
			continue
		}

		amtDiff := math.Abs(math.Abs(charge.Amount) - math.Abs(withdrawals[i].tx.Amount))
		if amtDiff > bound {
			continue
		}

		dateDist := withdrawals[i].tx.Date.Sub(due)
		if dateDist < 0 {
			dateDist = -dateDist
		}

		if best < 0 ||
			dateDist < bestDateDist ||
			(dateDist == bestDateDist && amtDiff < bestAmtDiff) {
			best = i
			bestDateDist = dateDist
			bestAmtDiff = amtDiff
		}
	}
	return best
}

type matchedPair struct {
	charge       domain.Transaction
	withdrawalID string
}

// markReconciled flips isReconciled on every matched or partially matched
// charge and links it to the consumed withdrawal. On failure it unwinds the
// charges already flipped before returning.
func (e *Engine) markReconciled(ctx context.Context, pairs []matchedPair) error {
	now := time.Now().UTC()
	for i, p := range pairs {
		tx := p.charge
		id := p.withdrawalID
		tx.IsReconciled = true
		tx.RelatedTransactionID = &id
		tx.UpdatedAt = now
		if err := e.ledger.Update(ctx, tx); err != nil {
			e.unwind(ctx, pairs[:i])
			return fmt.Errorf("mark charge %q reconciled: %w", tx.ID, err)
		}
	}
	return nil
}

// unwind restores the pre-run state of charges flipped before a later update
// failed. Best effort: a charge that cannot be restored is logged and left
// for the next run to recompute.
func (e *Engine) unwind(ctx context.Context, applied []matchedPair) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := e.ledger.Update(ctx, applied[i].charge); err != nil {
			e.log.Warn().Err(err).
				Str("transaction_id", applied[i].charge.ID).
				Msg("Failed to restore charge after aborted reconciliation")
		}
	}
}

// overallStatus aggregates per-charge outcomes into the report status.
func overallStatus(s domain.ReportSummary) domain.ReportStatus {
	switch {
	case s.Unmatched == 0 && s.Partial == 0:
		return domain.StatusMatched
	case s.Matched == 0 && s.Partial == 0:
		return domain.StatusUnmatched
	default:
		return domain.StatusPartial
	}
}
