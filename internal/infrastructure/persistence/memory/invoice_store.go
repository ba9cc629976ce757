// Package memory holds map-backed stores used by tests and by the
// "memory" database driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-scheduler/internal/application/port"
	"github.com/garyjia/invoice-scheduler/internal/domain/entity"
)

type occurrenceKey struct {
	clientID  string
	seriesID  string
	issueDate civil.Date
}

// InvoiceStore keeps invoices in memory and enforces the same occurrence
// uniqueness and version checks as the SQL repository.
type InvoiceStore struct {
	mu          sync.RWMutex
	invoices    map[string]*entity.Invoice
	occurrences map[occurrenceKey]string
}

// NewInvoiceStore creates an empty store
func NewInvoiceStore() *InvoiceStore {
	return &InvoiceStore{
		invoices:    make(map[string]*entity.Invoice),
		occurrences: make(map[occurrenceKey]string),
	}
}

func keyOf(inv *entity.Invoice) (occurrenceKey, bool) {
	if !inv.InSeries() {
		return occurrenceKey{}, false
	}
	return occurrenceKey{clientID: inv.ClientID, seriesID: inv.SeriesID, issueDate: inv.IssueDate}, true
}

func (s *InvoiceStore) Get(ctx context.Context, id string) (*entity.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, &entity.NotFoundError{Kind: "invoice", ID: id}
	}
	return inv.Clone(), nil
}

func (s *InvoiceStore) Put(ctx context.Context, inv *entity.Invoice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := inv.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev *entity.Invoice
	if inv.ID != "" {
		prev = s.invoices[inv.ID]
	}
	if prev != nil && prev.Version != inv.Version {
		return fmt.Errorf("%w: invoice %s at version %d, stored %d", entity.ErrVersionConflict, inv.ID, inv.Version, prev.Version)
	}

	if key, ok := keyOf(inv); ok {
		if owner, taken := s.occurrences[key]; taken && owner != inv.ID {
			return &entity.DuplicateOccurrenceError{ClientID: inv.ClientID, SeriesID: inv.SeriesID, IssueDate: inv.IssueDate}
		}
	}

	now := time.Now()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	inv.UpdatedAt = now
	inv.Version++

	if prev != nil {
		if key, ok := keyOf(prev); ok {
			delete(s.occurrences, key)
		}
	}
	if key, ok := keyOf(inv); ok {
		s.occurrences[key] = inv.ID
	}
	s.invoices[inv.ID] = inv.Clone()
	return nil
}

func (s *InvoiceStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return &entity.NotFoundError{Kind: "invoice", ID: id}
	}
	if key, ok := keyOf(inv); ok {
		delete(s.occurrences, key)
	}
	delete(s.invoices, id)
	return nil
}

// Query returns matching invoices ordered by issue date, then creation time
func (s *InvoiceStore) Query(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Invoice, 0)
	for _, inv := range s.invoices {
		if filter.Matches(inv) {
			out = append(out, inv.Clone())
		}
	}
	sortInvoices(out)
	return out, nil
}

func sortInvoices(list []*entity.Invoice) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IssueDate != b.IssueDate {
			return a.IssueDate.Before(b.IssueDate)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

var _ port.InvoiceStore = (*InvoiceStore)(nil)
