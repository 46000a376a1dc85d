package billingcycle

import (
	"context"
)

// Repository defines the interface for billing cycle persistence operations
type Repository interface {
	// Create creates a new billing cycle. Implementations must enforce
	// the per client non-overlap invariant transactionally.
	Create(ctx context.Context, cycle *BillingCycle) error

	// Get retrieves a billing cycle by ID
	Get(ctx context.Context, id string) (*BillingCycle, error)

	// ListByClient retrieves all billing cycles for a client ordered by period start
	ListByClient(ctx context.Context, clientID string) ([]*BillingCycle, error)

	// GetLatestByClient retrieves the cycle with the greatest period end
	// for a client, or a not found error when the client has none
	GetLatestByClient(ctx context.Context, clientID string) (*BillingCycle, error)
}
