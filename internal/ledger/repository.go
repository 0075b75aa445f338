package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/card-ledger/internal/domain"
)

// ErrNotFound is returned when an operation targets a transaction id that
// does not exist anywhere in the ledger.
var ErrNotFound = errors.New("transaction not found")

// Repository translates domain queries into partition reads plus in-memory
// filtering, and expresses every mutation as a read-modify-write on exactly
// the partitions involved.
type Repository struct {
	store *Store
}

// NewRepository wraps a partition store.
func NewRepository(store *Store) *Repository {
	return &Repository{store: store}
}

// Save appends a transaction to the partition matching its date.
func (r *Repository) Save(ctx context.Context, tx domain.Transaction) error {
	key := KeyForDate(tx.Date)
	lock := r.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	txs, err := r.store.ReadPartition(ctx, key)
	if err != nil {
		return err
	}
	txs = append(txs, tx)
	return r.store.WritePartition(ctx, key, txs)
}

// SaveMany groups the transactions by partition first, then does one
// read/append/write per partition instead of one per transaction.
func (r *Repository) SaveMany(ctx context.Context, txs []domain.Transaction) error {
	grouped := make(map[PartitionKey][]domain.Transaction)
	for _, tx := range txs {
		key := KeyForDate(tx.Date)
		grouped[key] = append(grouped[key], tx)
	}

	for key, batch := range grouped {
		if err := r.appendBatch(ctx, key, batch); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) appendBatch(ctx context.Context, key PartitionKey, batch []domain.Transaction) error {
	lock := r.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	existing, err := r.store.ReadPartition(ctx, key)
	if err != nil {
		return err
	}
	existing = append(existing, batch...)
	return r.store.WritePartition(ctx, key, existing)
}

// Update replaces the stored transaction whose id matches tx.ID within the
// partition for tx.Date. If no entry matches, the write is a no-op rather
// than an error; callers that must reject that case pre-check with FindByID.
// Update cannot move a transaction between partitions: a date change is
// delete from the old partition plus save into the new one, performed by the
// caller.
func (r *Repository) Update(ctx context.Context, tx domain.Transaction) error {
	key := KeyForDate(tx.Date)
	lock := r.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	txs, err := r.store.ReadPartition(ctx, key)
	if err != nil {
		return err
	}
	for i := range txs {
		if txs[i].ID == tx.ID {
			txs[i] = tx
			break
		}
	}
	return r.store.WritePartition(ctx, key, txs)
}

// Delete locates the partition holding id, filters the entry out, and writes
// the partition back. Returns ErrNotFound if id does not exist anywhere.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if tx == nil {
		return fmt.Errorf("delete %q: %w", id, ErrNotFound)
	}

	key := KeyForDate(tx.Date)
	lock := r.store.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	txs, err := r.store.ReadPartition(ctx, key)
	if err != nil {
		return err
	}
	kept := txs[:0]
	for _, t := range txs {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	return r.store.WritePartition(ctx, key, kept)
}

// DeleteAll removes every partition. Test and reset paths only.
func (r *Repository) DeleteAll(ctx context.Context) error {
	keys, err := r.store.ListPartitions(ctx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := r.store.DeletePartition(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// FindByID scans partitions in calendar order and returns the first match,
// or nil when the id is unknown.
func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Transaction, error) {
	keys, err := r.store.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		txs, err := r.store.ReadPartition(ctx, key)
		if err != nil {
			return nil, err
		}
		for i := range txs {
			if txs[i].ID == id {
				tx := txs[i]
				return &tx, nil
			}
		}
	}
	return nil, nil
}

// FindAll returns every transaction across all partitions in calendar order.
func (r *Repository) FindAll(ctx context.Context) ([]domain.Transaction, error) {
	return r.scan(ctx, nil)
}

// FindByInstitutionID returns all transactions recorded against one
// institution (bank or card issuer).
func (r *Repository) FindByInstitutionID(ctx context.Context, institutionID string) ([]domain.Transaction, error) {
	return r.scan(ctx, func(tx domain.Transaction) bool {
		return tx.InstitutionID == institutionID
	})
}

// FindByAccountID returns all transactions recorded against one account.
func (r *Repository) FindByAccountID(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return r.scan(ctx, func(tx domain.Transaction) bool {
		return tx.AccountID == accountID
	})
}

// FindByDateRange returns transactions with start <= date <= end. Only
// partitions overlapping the range are read.
func (r *Repository) FindByDateRange(ctx context.Context, start, end time.Time) ([]domain.Transaction, error) {
	return r.scanRange(ctx, start, end, func(tx domain.Transaction) bool {
		return !tx.Date.Before(start) && !tx.Date.After(end)
	})
}

// FindByInstitutionIDsAndDateRange filters by both institution membership and
// date window. An empty id list short-circuits to an empty result without
// touching storage.
func (r *Repository) FindByInstitutionIDsAndDateRange(ctx context.Context, institutionIDs []string, start, end time.Time) ([]domain.Transaction, error) {
	if len(institutionIDs) == 0 {
		return []domain.Transaction{}, nil
	}

	wanted := make(map[string]struct{}, len(institutionIDs))
	for _, id := range institutionIDs {
		wanted[id] = struct{}{}
	}

	return r.scanRange(ctx, start, end, func(tx domain.Transaction) bool {
		if _, ok := wanted[tx.InstitutionID]; !ok {
			return false
		}
		return !tx.Date.Before(start) && !tx.Date.After(end)
	})
}

// FindByMonth is a direct single-partition read.
func (r *Repository) FindByMonth(ctx context.Context, year int, month time.Month) ([]domain.Transaction, error) {
	return r.store.ReadPartition(ctx, PartitionKey{Year: year, Month: month})
}

// FindByYear concatenates the year's twelve monthly partitions in month
// order.
func (r *Repository) FindByYear(ctx context.Context, year int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for month := time.January; month <= time.December; month++ {
		txs, err := r.store.ReadPartition(ctx, PartitionKey{Year: year, Month: month})
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}
	if out == nil {
		out = []domain.Transaction{}
	}
	return out, nil
}

// FindUnreconciledTransfers returns transfer transactions that have not yet
// been matched by a reconciliation run.
func (r *Repository) FindUnreconciledTransfers(ctx context.Context) ([]domain.Transaction, error) {
	return r.scan(ctx, func(tx domain.Transaction) bool {
		return tx.Category.Type == domain.CategoryTransfer && !tx.IsReconciled
	})
}

// scan reads every partition in calendar order and keeps transactions the
// filter accepts; a nil filter keeps everything.
func (r *Repository) scan(ctx context.Context, keep func(domain.Transaction) bool) ([]domain.Transaction, error) {
	keys, err := r.store.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	out := []domain.Transaction{}
	for _, key := range keys {
		txs, err := r.store.ReadPartition(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if keep == nil || keep(tx) {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}

// scanRange is scan restricted to partitions overlapping [start, end].
func (r *Repository) scanRange(ctx context.Context, start, end time.Time, keep func(domain.Transaction) bool) ([]domain.Transaction, error) {
	keys, err := r.store.ListPartitions(ctx)
	if err != nil {
		return nil, err
	}

	first := KeyForDate(start)
	last := KeyForDate(end)

	out := []domain.Transaction{}
	for _, key := range keys {
		if key.Before(first) || last.Before(key) {
			continue
		}
		txs, err := r.store.ReadPartition(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, tx := range txs {
			if keep(tx) {
				out = append(out, tx)
			}
		}
	}
	return out, nil
}
