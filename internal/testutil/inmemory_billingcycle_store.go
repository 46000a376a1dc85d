package testutil

import (
	"context"

	"github.com/billforge/billforge/internal/domain/billingcycle"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryBillingCycleStore implements billingcycle.Repository
type InMemoryBillingCycleStore struct {
	*InMemoryStore[*billingcycle.BillingCycle]
}

func NewInMemoryBillingCycleStore() *InMemoryBillingCycleStore {
	return &InMemoryBillingCycleStore{
		InMemoryStore: NewInMemoryStore[*billingcycle.BillingCycle](),
	}
}

func (s *InMemoryBillingCycleStore) Create(ctx context.Context, cycle *billingcycle.BillingCycle) error {
	if cycle == nil {
		return ierr.NewError("billing cycle cannot be nil").
			Mark(ierr.ErrValidation)
	}

	// Mirror the exclusion constraint the real store enforces
	existing, err := s.ListByClient(ctx, cycle.ClientID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		if other.Overlaps(cycle.PeriodStart, cycle.PeriodEnd) {
			return ierr.NewError("billing cycle overlaps an existing cycle").
				WithReportableDetails(map[string]any{
					"client_id":    cycle.ClientID,
					"period_start": cycle.PeriodStart,
					"period_end":   cycle.PeriodEnd,
				}).
				Mark(ierr.ErrCycleConflict)
		}
	}

	return s.InMemoryStore.Create(ctx, cycle.ID, cycle)
}

func (s *InMemoryBillingCycleStore) Get(ctx context.Context, id string) (*billingcycle.BillingCycle, error) {
	cycle, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Billing cycle with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return cycle, nil
}

func (s *InMemoryBillingCycleStore) ListByClient(ctx context.Context, clientID string) ([]*billingcycle.BillingCycle, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, c *billingcycle.BillingCycle, _ interface{}) bool {
		if c.TenantID != types.GetTenantID(ctx) || c.Status == types.StatusDeleted {
			return false
		}
		return c.ClientID == clientID
	}, func(i, j *billingcycle.BillingCycle) bool {
		return i.PeriodStart.Before(j.PeriodStart)
	})
}

func (s *InMemoryBillingCycleStore) GetLatestByClient(ctx context.Context, clientID string) (*billingcycle.BillingCycle, error) {
	cycles, err := s.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if len(cycles) == 0 {
		return nil, ierr.NewError("client has no billing cycles").
			WithHintf("No billing cycles found for client %s", clientID).
			Mark(ierr.ErrNotFound)
	}

	latest := cycles[0]
	for _, cycle := range cycles[1:] {
		if cycle.PeriodEnd.After(latest.PeriodEnd) {
			latest = cycle
		}
	}
	return latest, nil
}
