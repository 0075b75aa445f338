package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/domain"
)

func newTestReportStore(t *testing.T) *DocumentReportStore {
	t.Helper()
	docs, err := docstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return NewDocumentReportStore(docs)
}

func makeReport(id, cardID, month string, executedAt time.Time) *domain.ReconciliationReport {
	bankID := "wd-1"
	return &domain.ReconciliationReport{
		ReconciliationID: id,
		CardID:           cardID,
		BillingMonth:     month,
		ExecutedAt:       executedAt,
		Status:           domain.StatusMatched,
		Summary:          domain.ReportSummary{Total: 1, Matched: 1},
		Records: []domain.MatchRecord{
			{CreditCardTransactionID: "charge-1", BankTransactionID: &bankID, Outcome: domain.OutcomeMatched},
		},
	}
}

func TestReportStore_AppendAndGet(t *testing.T) {
	store := newTestReportStore(t)
	ctx := context.Background()

	report := makeReport("rec-1", "card-1", "2024-01", time.Date(2024, time.February, 6, 8, 0, 0, 0, time.UTC))
	if err := store.Append(ctx, report); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := store.Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CardID != "card-1" || got.BillingMonth != "2024-01" || got.Status != domain.StatusMatched {
		t.Errorf("Get = %+v, want the appended report", got)
	}
	if len(got.Records) != 1 || got.Records[0].CreditCardTransactionID != "charge-1" {
		t.Errorf("records not preserved: %+v", got.Records)
	}
}

func TestReportStore_GetUnknownID(t *testing.T) {
	store := newTestReportStore(t)

	_, err := store.Get(context.Background(), "rec-nope")
	if !errors.Is(err, ErrReportNotFound) {
		t.Errorf("Get error = %v, want ErrReportNotFound", err)
	}
}

func TestReportStore_AppendIsImmutableHistory(t *testing.T) {
	store := newTestReportStore(t)
	ctx := context.Background()

	base := time.Date(2024, time.February, 6, 8, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, makeReport("rec-1", "card-1", "2024-01", base)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	// A re-run for the same card and month appends, never replaces
	if err := store.Append(ctx, makeReport("rec-2", "card-1", "2024-01", base.Add(time.Hour))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	summaries, err := store.List(ctx, "card-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("List returned %d reports, want 2", len(summaries))
	}
	if summaries[0].ReconciliationID != "rec-2" || summaries[1].ReconciliationID != "rec-1" {
		t.Errorf("List order = [%s %s], want newest first", summaries[0].ReconciliationID, summaries[1].ReconciliationID)
	}
}

func TestReportStore_ListFiltersByCard(t *testing.T) {
	store := newTestReportStore(t)
	ctx := context.Background()

	base := time.Date(2024, time.February, 6, 8, 0, 0, 0, time.UTC)
	if err := store.Append(ctx, makeReport("rec-1", "card-1", "2024-01", base)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, makeReport("rec-2", "card-2", "2024-01", base.Add(time.Minute))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	onlyCard2, err := store.List(ctx, "card-2")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(onlyCard2) != 1 || onlyCard2[0].ReconciliationID != "rec-2" {
		t.Errorf("List(card-2) = %+v, want [rec-2]", onlyCard2)
	}

	all, err := store.List(ctx, "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List(all) returned %d reports, want 2", len(all))
	}
}

func TestReportStore_ListUnknownCardIsEmpty(t *testing.T) {
	store := newTestReportStore(t)

	summaries, err := store.List(context.Background(), "card-nope")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("List of unknown card = %+v, want empty", summaries)
	}
}

func TestReportStore_AppendRequiresCardID(t *testing.T) {
	store := newTestReportStore(t)

	report := makeReport("rec-1", "", "2024-01", time.Now())
	if err := store.Append(context.Background(), report); err == nil {
		t.Error("Append without card id should fail")
	}
}
