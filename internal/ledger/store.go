package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/card-ledger/internal/docstore"
	"github.com/dvloznov/card-ledger/internal/domain"
)

// Store persists one partition's transaction list as a single document.
// Append, update, and delete are all expressed as "read, mutate in memory,
// write back"; the per-partition mutex serializes that sequence within the
// process so concurrent callers do not lose each other's writes.
type Store struct {
	docs docstore.DocumentStore

	mu    sync.Mutex
	locks map[PartitionKey]*sync.Mutex
}

// NewStore wraps a document store. The document store decides where
// partitions live (local directory, GCS bucket); the ledger only decides what
// goes in them.
func NewStore(docs docstore.DocumentStore) *Store {
	return &Store{
		docs:  docs,
		locks: make(map[PartitionKey]*sync.Mutex),
	}
}

// lockFor returns the mutex guarding one partition's read-modify-write
// critical section.
func (s *Store) lockFor(key PartitionKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// ReadPartition returns the partition's transactions. A missing partition is
// an empty list, not an error.
func (s *Store) ReadPartition(ctx context.Context, key PartitionKey) ([]domain.Transaction, error) {
	data, err := s.docs.Read(ctx, key.String())
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return []domain.Transaction{}, nil
		}
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}

	var txs []domain.Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		return nil, fmt.Errorf("decode partition %s: %w", key, err)
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// WritePartition atomically replaces the partition's entire contents. The
// caller supplies the complete desired list.
func (s *Store) WritePartition(ctx context.Context, key PartitionKey, txs []domain.Transaction) error {
	if txs == nil {
		txs = []domain.Transaction{}
	}
	data, err := json.MarshalIndent(txs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode partition %s: %w", key, err)
	}
	if err := s.docs.Write(ctx, key.String(), data); err != nil {
		return fmt.Errorf("write partition %s: %w", key, err)
	}
	return nil
}

// ListPartitions enumerates existing partitions in calendar order. Keys that
// do not parse as "YYYY-MM" are ignored rather than failing the scan.
func (s *Store) ListPartitions(ctx context.Context) ([]PartitionKey, error) {
	names, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	keys := make([]PartitionKey, 0, len(names))
	for _, name := range names {
		key, err := ParsePartitionKey(name)
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys, nil
}

// DeletePartition removes the partition document. Deleting a partition that
// does not exist is a no-op.
func (s *Store) DeletePartition(ctx context.Context, key PartitionKey) error {
	if err := s.docs.Delete(ctx, key.String()); err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("delete partition %s: %w", key, err)
	}
	return nil
}
