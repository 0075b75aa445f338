package reconcile

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

// ErrReportNotFound is returned when a report id does not exist.
var ErrReportNotFound = errors.New("reconciliation report not found")

// ReportStore is append-only persistence for reconciliation reports. Reports
// are immutable once written; there is no update operation.
type ReportStore interface {
	// Append persists a new report.
	Append(ctx context.Context, report *domain.ReconciliationReport) error

	// Get retrieves one report by id, or ErrReportNotFound.
	Get(ctx context.Context, id string) (*domain.ReconciliationReport, error)

	// List returns report summaries, newest first. An empty cardID lists
	// reports for all cards.
	List(ctx context.Context, cardID string) ([]domain.ReportSummaryView, error)
}

// DocumentReportStore reuses the ledger's document mechanism with the card id
// as the partition key: one document per card holding that card's full report
// history.
type DocumentReportStore struct {
	docs docstore.DocumentStore

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDocumentReportStore wraps a document store dedicated to reports.
func NewDocumentReportStore(docs docstore.DocumentStore) *DocumentReportStore {
	return &DocumentReportStore{
		docs:  docs,
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *DocumentReportStore) lockFor(cardID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[cardID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[cardID] = l
	}
	return l
}

func (s *DocumentReportStore) readCard(ctx context.Context, cardID string) ([]domain.ReconciliationReport, error) {
	data, err := s.docs.Read(ctx, cardID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotExist) {
			return []domain.ReconciliationReport{}, nil
		}
		return nil, fmt.Errorf("read reports for card %q: %w", cardID, err)
	}

	var reports []domain.ReconciliationReport
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("decode reports for card %q: %w", cardID, err)
	}
	return reports, nil
}

// Append implements ReportStore.
func (s *DocumentReportStore) Append(ctx context.Context, report *domain.ReconciliationReport) error {
	if report.CardID == "" {
		return fmt.Errorf("report %q has no card id", report.ReconciliationID)
	}

	lock := s.lockFor(report.CardID)
	lock.Lock()
	defer lock.Unlock()

	reports, err := s.readCard(ctx, report.CardID)
	if err != nil {
		return err
	}
	reports = append(reports, *report)

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return fmt.Errorf("encode reports for card %q: %w", report.CardID, err)
	}
	if err := s.docs.Write(ctx, report.CardID, data); err != nil {
		return fmt.Errorf("write reports for card %q: %w", report.CardID, err)
	}
	return nil
}

// Get implements ReportStore.
func (s *DocumentReportStore) Get(ctx context.Context, id string) (*domain.ReconciliationReport, error) {
	cards, err := s.docs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list report cards: %w", err)
	}

	for _, cardID := range cards {
		reports, err := s.readCard(ctx, cardID)
		if err != nil {
			return nil, err
		}
		for i := range reports {
			if reports[i].ReconciliationID == id {
				report := reports[i]
				return &report, nil
			}
		}
	}
	return nil, fmt.Errorf("report %q: %w", id, ErrReportNotFound)
}

// List implements ReportStore.
func (s *DocumentReportStore) List(ctx context.Context, cardID string) ([]domain.ReportSummaryView, error) {
	cards := []string{cardID}
	if cardID == "" {
		all, err := s.docs.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list report cards: %w", err)
		}
		cards = all
	}

	out := []domain.ReportSummaryView{}
	for _, card := range cards {
		reports, err := s.readCard(ctx, card)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			out = append(out, domain.ReportSummaryView{
				ReconciliationID: r.ReconciliationID,
				CardID:           r.CardID,
				BillingMonth:     r.BillingMonth,
				ExecutedAt:       r.ExecutedAt,
				Status:           r.Status,
				Summary:          r.Summary,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExecutedAt.Equal(out[j].ExecutedAt) {
			return out[i].ExecutedAt.After(out[j].ExecutedAt)
		}
		return out[i].ReconciliationID < out[j].ReconciliationID
	})
	return out, nil
}

// Ensure DocumentReportStore implements ReportStore.
var _ ReportStore = (*DocumentReportStore)(nil)
