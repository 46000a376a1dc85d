package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/billforge/billforge/internal/domain/bucket"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
)

type bucketLedgerRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewBucketLedgerRepository creates a postgres backed bucket ledger repository
func NewBucketLedgerRepository(client postgres.IClient, logger *logger.Logger) bucket.Repository {
	return &bucketLedgerRepository{client: client, logger: logger}
}

func (r *bucketLedgerRepository) Create(ctx context.Context, ledger *bucket.BucketLedger) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO bucket_ledgers (
			id, client_id, service_id, contract_line_id,
			period_start, period_end, total_allotment, rolled_over_remainder,
			consumed, rolled_over_at, version,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :service_id, :contract_line_id,
			:period_start, :period_end, :total_allotment, :rolled_over_remainder,
			:consumed, :rolled_over_at, :version,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, ledger)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("A ledger for this key and period already exists").
				WithReportableDetails(map[string]any{
					"client_id":        ledger.ClientID,
					"service_id":       ledger.ServiceID,
					"contract_line_id": ledger.ContractLineID,
					"period_start":     ledger.PeriodStart,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create bucket ledger").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *bucketLedgerRepository) Get(ctx context.Context, id string) (*bucket.BucketLedger, error) {
	var ledger bucket.BucketLedger
	err := r.client.Querier(ctx).GetContext(ctx, &ledger, `
		SELECT * FROM bucket_ledgers
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("bucket ledger not found").
				WithHintf("Bucket ledger with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get bucket ledger").
			Mark(ierr.ErrDatabase)
	}
	return &ledger, nil
}

func (r *bucketLedgerRepository) GetForPeriod(ctx context.Context, key bucket.LedgerKey, at time.Time) (*bucket.BucketLedger, error) {
	var ledger bucket.BucketLedger
	err := r.client.Querier(ctx).GetContext(ctx, &ledger, `
		SELECT * FROM bucket_ledgers
		WHERE client_id = $1 AND service_id = $2 AND contract_line_id = $3
			AND period_start <= $4 AND period_end > $4
			AND tenant_id = $5 AND status != $6`,
		key.ClientID, key.ServiceID, key.ContractLineID, at,
		types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("no ledger covers the period").
				WithHintf("No bucket ledger covers %s", at.Format(time.RFC3339)).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get bucket ledger for period").
			Mark(ierr.ErrDatabase)
	}
	return &ledger, nil
}

func (r *bucketLedgerRepository) Update(ctx context.Context, ledger *bucket.BucketLedger, expectedVersion int) error {
	ledger.Touch(ctx)
	result, err := r.client.Querier(ctx).ExecContext(ctx, `
		UPDATE bucket_ledgers SET
			consumed = $1, rolled_over_remainder = $2, rolled_over_at = $3,
			version = version + 1, updated_at = $4, updated_by = $5
		WHERE id = $6 AND tenant_id = $7 AND version = $8`,
		ledger.Consumed, ledger.RolledOverRemainder, ledger.RolledOverAt,
		ledger.UpdatedAt, ledger.UpdatedBy,
		ledger.ID, types.GetTenantID(ctx), expectedVersion)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update bucket ledger").
			Mark(ierr.ErrDatabase)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read update result").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError("bucket ledger version conflict").
			WithHint("The ledger was modified concurrently, retry the operation").
			WithReportableDetails(map[string]any{
				"ledger_id":        ledger.ID,
				"expected_version": expectedVersion,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	ledger.Version = expectedVersion + 1
	return nil
}
