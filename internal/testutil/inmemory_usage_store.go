package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryUsageStore implements usage.Repository
type InMemoryUsageStore struct {
	*InMemoryStore[*usage.UsageRecord]
}

func NewInMemoryUsageStore() *InMemoryUsageStore {
	return &InMemoryUsageStore{
		InMemoryStore: NewInMemoryStore[*usage.UsageRecord](),
	}
}

func (s *InMemoryUsageStore) Create(ctx context.Context, record *usage.UsageRecord) error {
	if record == nil {
		return ierr.NewError("usage record cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, record.ID, record)
}

func (s *InMemoryUsageStore) Get(ctx context.Context, id string) (*usage.UsageRecord, error) {
	record, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Usage record with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return record, nil
}

func (s *InMemoryUsageStore) ListByClientAndService(ctx context.Context, clientID, serviceID string, from, to time.Time) ([]*usage.UsageRecord, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, r *usage.UsageRecord, _ interface{}) bool {
		if r.TenantID != types.GetTenantID(ctx) || r.Status == types.StatusDeleted {
			return false
		}
		if r.ClientID != clientID || r.ServiceID != serviceID {
			return false
		}
		return !r.UsageDate.Before(from) && r.UsageDate.Before(to)
	}, func(i, j *usage.UsageRecord) bool {
		return i.UsageDate.Before(j.UsageDate)
	})
}
