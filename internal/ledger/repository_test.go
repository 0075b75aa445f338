package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/domain"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	docs, err := docstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return NewRepository(NewStore(docs))
}

func makeTransaction(id string, date time.Time) domain.Transaction {
	return domain.Transaction{
		ID:          id,
		Date:        date,
		Amount:      -42.5,
		Description: "coffee",
		Category: domain.Category{
			ID:   "cat-1",
			Name: "Eating out",
			Type: domain.CategoryExpense,
		},
		InstitutionID: "inst-1",
		AccountID:     "acc-1",
		Status:        "posted",
		CreatedAt:     date,
		UpdatedAt:     date,
	}
}

func TestRepository_SaveRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	related := "tx-other"
	tx := makeTransaction("tx-1", time.Date(2024, time.January, 10, 12, 30, 0, 0, time.UTC))
	tx.IsReconciled = true
	tx.RelatedTransactionID = &related

	if err := repo.Save(ctx, tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := repo.FindByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("FindByID returned nil for a saved transaction")
	}

	if got.ID != tx.ID ||
		!got.Date.Equal(tx.Date) ||
		got.Amount != tx.Amount ||
		got.Category != tx.Category ||
		got.Description != tx.Description ||
		got.InstitutionID != tx.InstitutionID ||
		got.AccountID != tx.AccountID ||
		got.Status != tx.Status ||
		got.IsReconciled != tx.IsReconciled ||
		got.RelatedTransactionID == nil || *got.RelatedTransactionID != related ||
		!got.CreatedAt.Equal(tx.CreatedAt) ||
		!got.UpdatedAt.Equal(tx.UpdatedAt) {
		t.Errorf("round trip mismatch:\ngot  %+v\nwant %+v", got, tx)
	}
}

func TestRepository_PartitionCorrectness(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	jan := makeTransaction("tx-jan", time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
	feb := makeTransaction("tx-feb", time.Date(2024, time.February, 15, 0, 0, 0, 0, time.UTC))

	if err := repo.SaveMany(ctx, []domain.Transaction{jan, feb}); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	janTxs, err := repo.FindByMonth(ctx, 2024, time.January)
	if err != nil {
		t.Fatalf("FindByMonth failed: %v", err)
	}
	if len(janTxs) != 1 || janTxs[0].ID != "tx-jan" {
		t.Errorf("FindByMonth(2024, Jan) = %v, want exactly tx-jan", ids(janTxs))
	}

	febTxs, err := repo.FindByMonth(ctx, 2024, time.February)
	if err != nil {
		t.Fatalf("FindByMonth failed: %v", err)
	}
	if len(febTxs) != 1 || febTxs[0].ID != "tx-feb" {
		t.Errorf("FindByMonth(2024, Feb) = %v, want exactly tx-feb", ids(febTxs))
	}
}

func TestRepository_FindByYearMonthOrder(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// Saved out of order on purpose
	txs := []domain.Transaction{
		makeTransaction("tx-mar", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)),
		makeTransaction("tx-jan", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		makeTransaction("tx-dec", time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC)),
		makeTransaction("tx-other-year", time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)),
	}
	if err := repo.SaveMany(ctx, txs); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	got, err := repo.FindByYear(ctx, 2024)
	if err != nil {
		t.Fatalf("FindByYear failed: %v", err)
	}

	want := []string{"tx-jan", "tx-mar", "tx-dec"}
	gotIDs := ids(got)
	if len(gotIDs) != len(want) {
		t.Fatalf("FindByYear = %v, want %v", gotIDs, want)
	}
	for i := range want {
		if gotIDs[i] != want[i] {
			t.Fatalf("FindByYear = %v, want %v", gotIDs, want)
		}
	}
}

func TestRepository_DeleteIdempotency(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tx := makeTransaction("tx-1", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC))
	if err := repo.Save(ctx, tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := repo.Delete(ctx, "tx-1"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}

	got, err := repo.FindByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("FindByID after delete = %+v, want nil", got)
	}

	if err := repo.Delete(ctx, "tx-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestRepository_UpdateReplacesEntry(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tx := makeTransaction("tx-1", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC))
	other := makeTransaction("tx-2", time.Date(2024, time.May, 6, 0, 0, 0, 0, time.UTC))
	if err := repo.SaveMany(ctx, []domain.Transaction{tx, other}); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	tx.Description = "groceries"
	tx.Amount = -99.9
	if err := repo.Update(ctx, tx); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := repo.FindByID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if got.Description != "groceries" || got.Amount != -99.9 {
		t.Errorf("updated transaction = %+v, want description=groceries amount=-99.9", got)
	}

	// The neighbor must be untouched
	neighbor, err := repo.FindByID(ctx, "tx-2")
	if err != nil {
		t.Fatalf("FindByID failed: %v", err)
	}
	if neighbor == nil || neighbor.Description != "coffee" {
		t.Errorf("neighbor transaction changed: %+v", neighbor)
	}
}

func TestRepository_UpdateUnknownIDIsNoOp(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	tx := makeTransaction("tx-1", time.Date(2024, time.May, 5, 0, 0, 0, 0, time.UTC))
	if err := repo.Save(ctx, tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	ghost := makeTransaction("tx-ghost", time.Date(2024, time.May, 9, 0, 0, 0, 0, time.UTC))
	if err := repo.Update(ctx, ghost); err != nil {
		t.Fatalf("Update of unknown id should not error, got: %v", err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 1 || all[0].ID != "tx-1" {
		t.Errorf("ledger contents after no-op update = %v, want [tx-1]", ids(all))
	}
}

func TestRepository_FindByInstitutionIDsAndDateRange(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	inWindow := makeTransaction("tx-in", time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC))
	outOfWindow := makeTransaction("tx-out", time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC))
	otherInst := makeTransaction("tx-other", time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC))
	otherInst.InstitutionID = "inst-2"

	if err := repo.SaveMany(ctx, []domain.Transaction{inWindow, outOfWindow, otherInst}); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.January, 31, 23, 59, 59, 0, time.UTC)

	got, err := repo.FindByInstitutionIDsAndDateRange(ctx, []string{"inst-1"}, start, end)
	if err != nil {
		t.Fatalf("FindByInstitutionIDsAndDateRange failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "tx-in" {
		t.Errorf("FindByInstitutionIDsAndDateRange = %v, want [tx-in]", ids(got))
	}
}

func TestRepository_EmptyInstitutionIDsShortCircuit(t *testing.T) {
	docs, err := docstore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	counting := &countingStore{DocumentStore: docs}
	repo := NewRepository(NewStore(counting))
	ctx := context.Background()

	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)

	got, err := repo.FindByInstitutionIDsAndDateRange(ctx, nil, start, end)
	if err != nil {
		t.Fatalf("FindByInstitutionIDsAndDateRange failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", ids(got))
	}
	if counting.reads != 0 || counting.lists != 0 {
		t.Errorf("expected zero storage operations, got reads=%d lists=%d", counting.reads, counting.lists)
	}
}

func TestRepository_FindByDateRangeBoundaries(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	start := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC)

	txs := []domain.Transaction{
		makeTransaction("tx-at-start", start),
		makeTransaction("tx-at-end", end),
		makeTransaction("tx-before", start.Add(-time.Second)),
		makeTransaction("tx-after", end.Add(time.Second)),
	}
	if err := repo.SaveMany(ctx, txs); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	got, err := repo.FindByDateRange(ctx, start, end)
	if err != nil {
		t.Fatalf("FindByDateRange failed: %v", err)
	}

	gotIDs := map[string]bool{}
	for _, tx := range got {
		gotIDs[tx.ID] = true
	}
	if len(got) != 2 || !gotIDs["tx-at-start"] || !gotIDs["tx-at-end"] {
		t.Errorf("FindByDateRange = %v, want [tx-at-start tx-at-end]", ids(got))
	}
}

func TestRepository_FindUnreconciledTransfers(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	transfer := makeTransaction("tx-transfer", time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	transfer.Category.Type = domain.CategoryTransfer

	reconciled := makeTransaction("tx-reconciled", time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC))
	reconciled.Category.Type = domain.CategoryTransfer
	reconciled.IsReconciled = true

	expense := makeTransaction("tx-expense", time.Date(2024, time.April, 3, 0, 0, 0, 0, time.UTC))

	if err := repo.SaveMany(ctx, []domain.Transaction{transfer, reconciled, expense}); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	got, err := repo.FindUnreconciledTransfers(ctx)
	if err != nil {
		t.Fatalf("FindUnreconciledTransfers failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "tx-transfer" {
		t.Errorf("FindUnreconciledTransfers = %v, want [tx-transfer]", ids(got))
	}
}

func TestRepository_DeleteAll(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	txs := []domain.Transaction{
		makeTransaction("tx-1", time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)),
		makeTransaction("tx-2", time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)),
	}
	if err := repo.SaveMany(ctx, txs); err != nil {
		t.Fatalf("SaveMany failed: %v", err)
	}

	if err := repo.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty ledger after DeleteAll, got %v", ids(all))
	}
}

func TestRepository_ConcurrentSavesSamePartition(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	// Every save targets the January partition, so each one is a full
	// read-modify-write of the same document.
	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := makeTransaction(fmt.Sprintf("tx-%02d", i), time.Date(2024, time.January, 1+i%28, 0, 0, 0, 0, time.UTC))
			if err := repo.Save(ctx, tx); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Save failed: %v", err)
	}

	got, err := repo.FindByMonth(ctx, 2024, time.January)
	if err != nil {
		t.Fatalf("FindByMonth failed: %v", err)
	}
	if len(got) != n {
		t.Errorf("FindByMonth returned %d transactions, want %d; concurrent saves lost updates", len(got), n)
	}
}

func ids(txs []domain.Transaction) []string {
	out := make([]string, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.ID)
	}
	return out
}

// countingStore counts storage operations to verify short-circuit behavior.
type countingStore struct {
	docstore.DocumentStore
	reads int
	lists int
}

func (c *countingStore) Read(ctx context.Context, key string) ([]byte, error) {
	c.reads++
	return c.DocumentStore.Read(ctx, key)
}

func (c *countingStore) List(ctx context.Context) ([]string, error) {
	c.lists++
	return c.DocumentStore.List(ctx)
}
