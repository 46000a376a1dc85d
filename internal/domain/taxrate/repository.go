package taxrate

import (
	"context"
	"time"
)

// Repository defines the interface for tax rate persistence operations.
// Operator configuration screens read and write through this interface;
// the billing core consumes rates through Provider.
type Repository interface {
	// Create creates a new tax rate
	Create(ctx context.Context, rate *TaxRate) error

	// Get retrieves a tax rate by ID
	Get(ctx context.Context, id string) (*TaxRate, error)

	// Update updates an existing tax rate
	Update(ctx context.Context, rate *TaxRate) error

	// ListByRegion retrieves all rates configured for a region
	ListByRegion(ctx context.Context, region string) ([]*TaxRate, error)
}

// Provider is the injected tax rate source consumed by the invoice line
// computer. A nil rate with a nil error means no active rate covers the
// region as of the given time; callers decide whether that is an error.
type Provider interface {
	GetActiveRate(ctx context.Context, region string, asOf time.Time) (*TaxRate, error)
}
