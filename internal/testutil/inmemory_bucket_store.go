package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/billforge/billforge/internal/domain/bucket"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryBucketLedgerStore implements bucket.Repository with the same
// optimistic versioning contract as the postgres store
type InMemoryBucketLedgerStore struct {
	mu      sync.Mutex
	ledgers map[string]*bucket.BucketLedger
}

func NewInMemoryBucketLedgerStore() *InMemoryBucketLedgerStore {
	return &InMemoryBucketLedgerStore{
		ledgers: make(map[string]*bucket.BucketLedger),
	}
}

func (s *InMemoryBucketLedgerStore) Create(ctx context.Context, ledger *bucket.BucketLedger) error {
	if ledger == nil {
		return ierr.NewError("bucket ledger cannot be nil").
			Mark(ierr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ledgers[ledger.ID]; exists {
		return ierr.NewError("bucket ledger already exists").
			Mark(ierr.ErrAlreadyExists)
	}
	// Mirror the unique constraint on (key, period_start)
	for _, other := range s.ledgers {
		if other.TenantID == ledger.TenantID &&
			other.Key() == ledger.Key() &&
			other.PeriodStart.Equal(ledger.PeriodStart) {
			return ierr.NewError("a ledger for this key and period already exists").
				Mark(ierr.ErrAlreadyExists)
		}
	}

	stored := *ledger
	s.ledgers[ledger.ID] = &stored
	return nil
}

func (s *InMemoryBucketLedgerStore) Get(ctx context.Context, id string) (*bucket.BucketLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, exists := s.ledgers[id]
	if !exists || ledger.TenantID != types.GetTenantID(ctx) {
		return nil, ierr.NewError("bucket ledger not found").
			WithHintf("Bucket ledger with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	copied := *ledger
	return &copied, nil
}

func (s *InMemoryBucketLedgerStore) GetForPeriod(ctx context.Context, key bucket.LedgerKey, at time.Time) (*bucket.BucketLedger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ledger := range s.ledgers {
		if ledger.TenantID != types.GetTenantID(ctx) || ledger.Status == types.StatusDeleted {
			continue
		}
		if ledger.Key() == key && !at.Before(ledger.PeriodStart) && at.Before(ledger.PeriodEnd) {
			copied := *ledger
			return &copied, nil
		}
	}

	return nil, ierr.NewError("no ledger covers the period").
		WithHintf("No bucket ledger covers %s", at.Format(time.RFC3339)).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryBucketLedgerStore) Update(ctx context.Context, ledger *bucket.BucketLedger, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.ledgers[ledger.ID]
	if !exists {
		return ierr.NewError("bucket ledger not found").
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != expectedVersion {
		return ierr.NewError("bucket ledger version conflict").
			WithReportableDetails(map[string]any{
				"ledger_id":        ledger.ID,
				"expected_version": expectedVersion,
				"stored_version":   stored.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	updated := *ledger
	updated.Version = expectedVersion + 1
	s.ledgers[ledger.ID] = &updated
	ledger.Version = updated.Version
	return nil
}

// ForceVersion bumps the stored version to simulate a concurrent
// writer between a read and the following update
func (s *InMemoryBucketLedgerStore) ForceVersion(id string, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ledger, exists := s.ledgers[id]; exists {
		ledger.Version = version
	}
}

// Clear removes all ledgers from the store
func (s *InMemoryBucketLedgerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledgers = make(map[string]*bucket.BucketLedger)
}
