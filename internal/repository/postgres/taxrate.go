package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/billforge/billforge/internal/cache"
	"github.com/billforge/billforge/internal/domain/taxrate"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
)

type taxRateRepository struct {
	client postgres.IClient
	logger *logger.Logger
	cache  cache.Cache
}

// NewTaxRateRepository creates a postgres backed tax rate repository.
// It also serves as the default taxrate.Provider.
func NewTaxRateRepository(client postgres.IClient, logger *logger.Logger, c cache.Cache) taxrate.Repository {
	return &taxRateRepository{client: client, logger: logger, cache: c}
}

// NewTaxRateProvider exposes the repository as the injected rate source
func NewTaxRateProvider(client postgres.IClient, logger *logger.Logger, c cache.Cache) taxrate.Provider {
	return &taxRateRepository{client: client, logger: logger, cache: c}
}

func (r *taxRateRepository) Create(ctx context.Context, rate *taxrate.TaxRate) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO tax_rates (
			id, name, region, percentage, effective_from, effective_to,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :name, :region, :percentage, :effective_from, :effective_to,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, rate)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A tax rate with ID %s already exists", rate.ID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create tax rate").
			Mark(ierr.ErrDatabase)
	}
	r.cache.DeleteByPrefix(ctx, cache.PrefixTaxRate)
	return nil
}

func (r *taxRateRepository) Get(ctx context.Context, id string) (*taxrate.TaxRate, error) {
	var rate taxrate.TaxRate
	err := r.client.Querier(ctx).GetContext(ctx, &rate, `
		SELECT * FROM tax_rates
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("tax rate not found").
				WithHintf("Tax rate with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get tax rate").
			Mark(ierr.ErrDatabase)
	}
	return &rate, nil
}

func (r *taxRateRepository) Update(ctx context.Context, rate *taxrate.TaxRate) error {
	rate.Touch(ctx)
	result, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		UPDATE tax_rates SET
			name = :name, percentage = :percentage,
			effective_from = :effective_from, effective_to = :effective_to,
			status = :status, updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`, rate)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update tax rate").
			Mark(ierr.ErrDatabase)
	}
	if err := requireRowsAffected(result, "tax rate"); err != nil {
		return err
	}
	// Active rate lookups are memoized; a write must drop the memo so
	// the next computation pass prices against the current table.
	r.cache.DeleteByPrefix(ctx, cache.PrefixTaxRate)
	return nil
}

func (r *taxRateRepository) ListByRegion(ctx context.Context, region string) ([]*taxrate.TaxRate, error) {
	var rates []*taxrate.TaxRate
	err := r.client.Querier(ctx).SelectContext(ctx, &rates, `
		SELECT * FROM tax_rates
		WHERE region = $1 AND tenant_id = $2 AND status != $3
		ORDER BY effective_from DESC`,
		region, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tax rates").
			Mark(ierr.ErrDatabase)
	}
	return rates, nil
}

// GetActiveRate returns the rate effective for the region as of the
// given time, or nil when none covers it.
func (r *taxRateRepository) GetActiveRate(ctx context.Context, region string, asOf time.Time) (*taxrate.TaxRate, error) {
	var rate taxrate.TaxRate
	err := r.client.Querier(ctx).GetContext(ctx, &rate, `
		SELECT * FROM tax_rates
		WHERE region = $1 AND tenant_id = $2 AND status = $3
			AND effective_from <= $4
			AND (effective_to IS NULL OR effective_to > $4)
		ORDER BY effective_from DESC
		LIMIT 1`,
		region, types.GetTenantID(ctx), types.StatusPublished, asOf)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to look up active tax rate").
			Mark(ierr.ErrDatabase)
	}
	return &rate, nil
}
