package bucket

import (
	"context"
	"time"
)

// Repository defines the interface for bucket ledger persistence operations
type Repository interface {
	// Create creates a new bucket ledger
	Create(ctx context.Context, ledger *BucketLedger) error

	// Get retrieves a bucket ledger by ID
	Get(ctx context.Context, id string) (*BucketLedger, error)

	// GetForPeriod retrieves the ledger for the key whose period covers
	// the given time, or a not found error
	GetForPeriod(ctx context.Context, key LedgerKey, at time.Time) (*BucketLedger, error)

	// Update persists the ledger if and only if the stored version
	// matches expectedVersion, incrementing the version on success.
	// A mismatch returns a version conflict error.
	Update(ctx context.Context, ledger *BucketLedger, expectedVersion int) error
}
