package postgres

import (
	"context"
	"database/sql"

	"github.com/billforge/billforge/internal/domain/billingcycle"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
)

type billingCycleRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewBillingCycleRepository creates a postgres backed billing cycle repository
func NewBillingCycleRepository(client postgres.IClient, logger *logger.Logger) billingcycle.Repository {
	return &billingCycleRepository{client: client, logger: logger}
}

func (r *billingCycleRepository) Create(ctx context.Context, cycle *billingcycle.BillingCycle) error {
	// The overlap exclusion constraint backs up the service level check
	// for concurrent creations racing past it.
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO billing_cycles (
			id, client_id, cycle_type, period_start, period_end, version,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :cycle_type, :period_start, :period_end, :version,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, cycle)
	if err != nil {
		if postgres.IsUniqueViolation(err) || postgres.IsExclusionViolation(err) {
			return ierr.WithError(err).
				WithHint("A billing cycle overlapping this period already exists").
				WithReportableDetails(map[string]any{
					"client_id":    cycle.ClientID,
					"period_start": cycle.PeriodStart,
					"period_end":   cycle.PeriodEnd,
				}).
				Mark(ierr.ErrCycleConflict)
		}
		return ierr.WithError(err).
			WithHint("Failed to create billing cycle").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *billingCycleRepository) Get(ctx context.Context, id string) (*billingcycle.BillingCycle, error) {
	var cycle billingcycle.BillingCycle
	err := r.client.Querier(ctx).GetContext(ctx, &cycle, `
		SELECT * FROM billing_cycles
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("billing cycle not found").
				WithHintf("Billing cycle with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get billing cycle").
			Mark(ierr.ErrDatabase)
	}
	return &cycle, nil
}

func (r *billingCycleRepository) ListByClient(ctx context.Context, clientID string) ([]*billingcycle.BillingCycle, error) {
	var cycles []*billingcycle.BillingCycle
	err := r.client.Querier(ctx).SelectContext(ctx, &cycles, `
		SELECT * FROM billing_cycles
		WHERE client_id = $1 AND tenant_id = $2 AND status != $3
		ORDER BY period_start`,
		clientID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list billing cycles").
			Mark(ierr.ErrDatabase)
	}
	return cycles, nil
}

func (r *billingCycleRepository) GetLatestByClient(ctx context.Context, clientID string) (*billingcycle.BillingCycle, error) {
	var cycle billingcycle.BillingCycle
	err := r.client.Querier(ctx).GetContext(ctx, &cycle, `
		SELECT * FROM billing_cycles
		WHERE client_id = $1 AND tenant_id = $2 AND status != $3
		ORDER BY period_end DESC
		LIMIT 1`,
		clientID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("no billing cycles for client").
				WithHintf("Client %s has no billing cycles yet", clientID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get latest billing cycle").
			Mark(ierr.ErrDatabase)
	}
	return &cycle, nil
}
