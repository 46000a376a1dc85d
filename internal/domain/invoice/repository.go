package invoice

import (
	"context"
)

// Repository defines the interface for invoice persistence operations
type Repository interface {
	// Create creates a new invoice with its line items
	Create(ctx context.Context, invoice *Invoice) error

	// Get retrieves an invoice by ID including its line items
	Get(ctx context.Context, id string) (*Invoice, error)

	// Update updates an existing invoice and its line items. The
	// aggregate write must be the last writer for the invoice within a
	// transaction.
	Update(ctx context.Context, invoice *Invoice) error

	// ListByClient retrieves all invoices for a client
	ListByClient(ctx context.Context, clientID string) ([]*Invoice, error)
}
