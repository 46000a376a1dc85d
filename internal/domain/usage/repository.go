package usage

import (
	"context"
	"time"
)

// Repository defines the interface for usage record persistence operations
type Repository interface {
	// Create creates a new usage record
	Create(ctx context.Context, record *UsageRecord) error

	// Get retrieves a usage record by ID
	Get(ctx context.Context, id string) (*UsageRecord, error)

	// ListByClientAndService retrieves records for a client and service
	// within [from, to)
	ListByClientAndService(ctx context.Context, clientID, serviceID string, from, to time.Time) ([]*UsageRecord, error)
}
