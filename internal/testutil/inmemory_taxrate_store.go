package testutil

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/cache"
	"github.com/billforge/billforge/internal/domain/taxrate"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// InMemoryTaxRateStore implements taxrate.Repository and
// taxrate.Provider. Writes drop the memoized rate lookups the same way
// the postgres repository does.
type InMemoryTaxRateStore struct {
	*InMemoryStore[*taxrate.TaxRate]
	cache cache.Cache
}

func NewInMemoryTaxRateStore(c cache.Cache) *InMemoryTaxRateStore {
	return &InMemoryTaxRateStore{
		InMemoryStore: NewInMemoryStore[*taxrate.TaxRate](),
		cache:         c,
	}
}

func (s *InMemoryTaxRateStore) Create(ctx context.Context, rate *taxrate.TaxRate) error {
	if rate == nil {
		return ierr.NewError("tax rate cannot be nil").
			Mark(ierr.ErrValidation)
	}
	if err := s.InMemoryStore.Create(ctx, rate.ID, rate); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, cache.PrefixTaxRate)
	return nil
}

func (s *InMemoryTaxRateStore) Get(ctx context.Context, id string) (*taxrate.TaxRate, error) {
	rate, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Tax rate with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return rate, nil
}

func (s *InMemoryTaxRateStore) Update(ctx context.Context, rate *taxrate.TaxRate) error {
	if err := s.InMemoryStore.Update(ctx, rate.ID, rate); err != nil {
		return err
	}
	s.cache.DeleteByPrefix(ctx, cache.PrefixTaxRate)
	return nil
}

func (s *InMemoryTaxRateStore) ListByRegion(ctx context.Context, region string) ([]*taxrate.TaxRate, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, r *taxrate.TaxRate, _ interface{}) bool {
		if r.TenantID != types.GetTenantID(ctx) || r.Status == types.StatusDeleted {
			return false
		}
		return r.Region == region
	}, func(i, j *taxrate.TaxRate) bool {
		return i.EffectiveFrom.After(j.EffectiveFrom)
	})
}

// GetActiveRate returns the most recently effective rate covering the
// region as of the given time, or nil when none does
func (s *InMemoryTaxRateStore) GetActiveRate(ctx context.Context, region string, asOf time.Time) (*taxrate.TaxRate, error) {
	rates, err := s.ListByRegion(ctx, region)
	if err != nil {
		return nil, err
	}
	for _, rate := range rates {
		if rate.ActiveAt(asOf) {
			return rate, nil
		}
	}
	return nil, nil
}
