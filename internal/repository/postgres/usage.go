package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
)

type usageRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewUsageRepository creates a postgres backed usage record repository
func NewUsageRepository(client postgres.IClient, logger *logger.Logger) usage.Repository {
	return &usageRepository{client: client, logger: logger}
}

func (r *usageRepository) Create(ctx context.Context, record *usage.UsageRecord) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO usage_records (
			id, client_id, service_id, quantity, usage_date, contract_line_id,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :service_id, :quantity, :usage_date, :contract_line_id,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, record)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A usage record with ID %s already exists", record.ID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create usage record").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *usageRepository) Get(ctx context.Context, id string) (*usage.UsageRecord, error) {
	var record usage.UsageRecord
	err := r.client.Querier(ctx).GetContext(ctx, &record, `
		SELECT * FROM usage_records
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("usage record not found").
				WithHintf("Usage record with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get usage record").
			Mark(ierr.ErrDatabase)
	}
	return &record, nil
}

func (r *usageRepository) ListByClientAndService(ctx context.Context, clientID, serviceID string, from, to time.Time) ([]*usage.UsageRecord, error) {
	var records []*usage.UsageRecord
	err := r.client.Querier(ctx).SelectContext(ctx, &records, `
		SELECT * FROM usage_records
		WHERE client_id = $1 AND service_id = $2
			AND usage_date >= $3 AND usage_date < $4
			AND tenant_id = $5 AND status != $6
		ORDER BY usage_date`,
		clientID, serviceID, from, to, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list usage records").
			Mark(ierr.ErrDatabase)
	}
	return records, nil
}
