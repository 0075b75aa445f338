package domain

import (
	"time"
)

// MatchOutcome classifies one evaluated charge.
type MatchOutcome string

const (
	OutcomeMatched   MatchOutcome = "MATCHED"
	OutcomePartial   MatchOutcome = "PARTIAL"
	OutcomeUnmatched MatchOutcome = "UNMATCHED"
)

// ReportStatus aggregates all outcomes of a run: MATCHED when every charge
// matched exactly, UNMATCHED when nothing matched at all, PARTIAL otherwise.
type ReportStatus string

const (
	StatusMatched   ReportStatus = "MATCHED"
	StatusPartial   ReportStatus = "PARTIAL"
	StatusUnmatched ReportStatus = "UNMATCHED"
)

// MatchRecord is the per-charge result. BankTransactionID is nil for
// UNMATCHED outcomes.
type MatchRecord struct {
	CreditCardTransactionID string       `json:"credit_card_transaction_id"`
	BankTransactionID       *string      `json:"bank_transaction_id,omitempty"`
	Outcome                 MatchOutcome `json:"outcome"`
}

// ReportSummary holds the outcome counts. Total is the candidate charge
// count, so Total = Matched + Unmatched + Partial.
type ReportSummary struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Partial   int `json:"partial"`
}

// ReconciliationReport is the immutable result of one reconciliation run.
// Re-running reconciliation for the same (cardId, billingMonth) produces a
// new report with a fresh id; old reports are never mutated.
type ReconciliationReport struct {
	ReconciliationID string        `json:"reconciliation_id"`
	CardID           string        `json:"card_id"`
	BillingMonth     string        `json:"billing_month"`
	ExecutedAt       time.Time     `json:"executed_at"`
	Status           ReportStatus  `json:"status"`
	Summary          ReportSummary `json:"summary"`
	Records          []MatchRecord `json:"records"`
}

// ReportSummaryView is the listing shape returned by report queries that do
// not need the per-charge records.
type ReportSummaryView struct {
	ReconciliationID string        `json:"reconciliation_id"`
	CardID           string        `json:"card_id"`
	BillingMonth     string        `json:"billing_month"`
	ExecutedAt       time.Time     `json:"executed_at"`
	Status           ReportStatus  `json:"status"`
	Summary          ReportSummary `json:"summary"`
}
