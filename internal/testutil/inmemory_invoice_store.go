package testutil

import (
	"context"
	"sync"

	"github.com/billforge/billforge/internal/domain/invoice"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryInvoiceStore implements invoice.Repository
type InMemoryInvoiceStore struct {
	mu       sync.Mutex
	invoices map[string]*invoice.Invoice
}

func NewInMemoryInvoiceStore() *InMemoryInvoiceStore {
	return &InMemoryInvoiceStore{
		invoices: make(map[string]*invoice.Invoice),
	}
}

func (s *InMemoryInvoiceStore) Create(ctx context.Context, inv *invoice.Invoice) error {
	if inv == nil {
		return ierr.NewError("invoice cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invoices[inv.ID]; exists {
		return ierr.NewError("invoice already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	s.invoices[inv.ID] = copyInvoice(inv)
	return nil
}

func (s *InMemoryInvoiceStore) Get(ctx context.Context, id string) (*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, exists := s.invoices[id]
	if !exists || inv.TenantID != types.GetTenantID(ctx) || inv.Status == types.StatusDeleted {
		return nil, ierr.NewError("invoice not found").
			WithHintf("Invoice with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}

	copied := copyInvoice(inv)
	// Committed removals are deleted rows and stay out of reads
	items := make([]*invoice.InvoiceItem, 0, len(copied.Items))
	for _, item := range copied.Items {
		if item.Status != types.StatusDeleted {
			items = append(items, item)
		}
	}
	copied.Items = items
	return copied, nil
}

func (s *InMemoryInvoiceStore) Update(ctx context.Context, inv *invoice.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.invoices[inv.ID]
	if !exists {
		return ierr.NewError("invoice not found").
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != inv.Version {
		return ierr.NewError("invoice version conflict").
			WithHint("The invoice was modified concurrently, retry the operation").
			Mark(ierr.ErrVersionConflict)
	}

	updated := copyInvoice(inv)
	updated.Version = inv.Version + 1

	// Keep previously committed removals on the stored aggregate even
	// though reads no longer surface them
	byID := make(map[string]bool, len(updated.Items))
	for _, item := range updated.Items {
		byID[item.ID] = true
	}
	for _, item := range stored.Items {
		if !byID[item.ID] {
			updated.Items = append(updated.Items, item)
		}
	}

	s.invoices[inv.ID] = updated
	inv.Version = updated.Version
	return nil
}

func (s *InMemoryInvoiceStore) ListByClient(ctx context.Context, clientID string) ([]*invoice.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*invoice.Invoice
	for _, inv := range s.invoices {
		if inv.TenantID != types.GetTenantID(ctx) || inv.Status == types.StatusDeleted {
			continue
		}
		if inv.ClientID == clientID {
			result = append(result, copyInvoice(inv))
		}
	}
	return result, nil
}

// Clear removes all invoices from the store
func (s *InMemoryInvoiceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices = make(map[string]*invoice.Invoice)
}

func copyInvoice(inv *invoice.Invoice) *invoice.Invoice {
	copied := *inv
	copied.Items = make([]*invoice.InvoiceItem, len(inv.Items))
	for i, item := range inv.Items {
		itemCopy := *item
		copied.Items[i] = &itemCopy
	}
	return &copied
}
