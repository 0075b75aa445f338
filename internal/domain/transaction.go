package domain

import (
	"time"
)

// CategoryType classifies a category and fixes the sign convention of the
// amounts recorded under it (income positive, everything else negative).
type CategoryType string

const (
	CategoryIncome    CategoryType = "INCOME"
	CategoryExpense   CategoryType = "EXPENSE"
	CategoryTransfer  CategoryType = "TRANSFER"
	CategoryRepayment CategoryType = "REPAYMENT"
)

// Category is a denormalized snapshot taken when the transaction was
// classified. It is a copy, not a live reference: historical transactions keep
// the label they had at classification time even if the category is later
// renamed or deleted.
type Category struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Type CategoryType `json:"type"`
}

// Transaction represents one ledger entry (bank or credit-card activity).
// The ledger partitions transactions by calendar month of Date; the partition
// is fixed at creation and a plain update cannot move a transaction between
// partitions.
type Transaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Category    Category  `json:"category"`
	Description string    `json:"description"`

	InstitutionID string `json:"institution_id"`
	AccountID     string `json:"account_id"`
	Status        string `json:"status"`

	// IsReconciled and RelatedTransactionID are set by the reconciliation
	// engine when a charge is matched to a bank withdrawal.
	IsReconciled         bool    `json:"is_reconciled"`
	RelatedTransactionID *string `json:"related_transaction_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
