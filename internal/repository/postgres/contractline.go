package postgres

import (
	"context"
	"database/sql"

	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/logger"
	"github.com/billforge/billforge/internal/postgres"
	"github.com/billforge/billforge/internal/types"
	"github.com/jmoiron/sqlx"
)

type contractLineRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewContractLineRepository creates a postgres backed contract line repository
func NewContractLineRepository(client postgres.IClient, logger *logger.Logger) contractline.Repository {
	return &contractLineRepository{client: client, logger: logger}
}

func (r *contractLineRepository) Create(ctx context.Context, line *contractline.ContractLine) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO contract_lines (
			id, name, billing_frequency, plan_type, custom,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :name, :billing_frequency, :plan_type, :custom,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, line)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("A contract line with ID %s already exists", line.ID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create contract line").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *contractLineRepository) Get(ctx context.Context, id string) (*contractline.ContractLine, error) {
	var line contractline.ContractLine
	err := r.client.Querier(ctx).GetContext(ctx, &line, `
		SELECT * FROM contract_lines
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("contract line not found").
				WithHintf("Contract line with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get contract line").
			Mark(ierr.ErrDatabase)
	}
	return &line, nil
}

func (r *contractLineRepository) Update(ctx context.Context, line *contractline.ContractLine) error {
	line.Touch(ctx)
	result, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		UPDATE contract_lines SET
			name = :name, billing_frequency = :billing_frequency,
			plan_type = :plan_type, custom = :custom, status = :status,
			updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`, line)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update contract line").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "contract line")
}

func (r *contractLineRepository) List(ctx context.Context) ([]*contractline.ContractLine, error) {
	var lines []*contractline.ContractLine
	err := r.client.Querier(ctx).SelectContext(ctx, &lines, `
		SELECT * FROM contract_lines
		WHERE tenant_id = $1 AND status != $2
		ORDER BY created_at DESC`,
		types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list contract lines").
			Mark(ierr.ErrDatabase)
	}
	return lines, nil
}

type serviceConfigurationRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewServiceConfigurationRepository creates a postgres backed service configuration repository
func NewServiceConfigurationRepository(client postgres.IClient, logger *logger.Logger) contractline.ServiceConfigurationRepository {
	return &serviceConfigurationRepository{client: client, logger: logger}
}

func (r *serviceConfigurationRepository) Create(ctx context.Context, config *contractline.ServiceConfiguration) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO service_configurations (
			id, contract_line_id, service_id, configuration_type, quantity, custom_rate,
			fixed_config, hourly_config, usage_config, bucket_config,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :contract_line_id, :service_id, :configuration_type, :quantity, :custom_rate,
			:fixed_config, :hourly_config, :usage_config, :bucket_config,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, config)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHintf("Service %s is already configured on this contract line", config.ServiceID).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create service configuration").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *serviceConfigurationRepository) Get(ctx context.Context, id string) (*contractline.ServiceConfiguration, error) {
	var config contractline.ServiceConfiguration
	err := r.client.Querier(ctx).GetContext(ctx, &config, `
		SELECT * FROM service_configurations
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("service configuration not found").
				WithHintf("Service configuration with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get service configuration").
			Mark(ierr.ErrDatabase)
	}
	return &config, nil
}

func (r *serviceConfigurationRepository) Update(ctx context.Context, config *contractline.ServiceConfiguration) error {
	config.Touch(ctx)
	result, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		UPDATE service_configurations SET
			quantity = :quantity, custom_rate = :custom_rate,
			fixed_config = :fixed_config, hourly_config = :hourly_config,
			usage_config = :usage_config, bucket_config = :bucket_config,
			status = :status, updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`, config)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update service configuration").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "service configuration")
}

func (r *serviceConfigurationRepository) ListByService(ctx context.Context, serviceID string, contractLineIDs []string) ([]*contractline.ServiceConfiguration, error) {
	if len(contractLineIDs) == 0 {
		return []*contractline.ServiceConfiguration{}, nil
	}

	query, args, err := sqlx.In(`
		SELECT * FROM service_configurations
		WHERE service_id = ? AND contract_line_id IN (?) AND tenant_id = ? AND status = ?`,
		serviceID, contractLineIDs, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to build service configuration query").
			Mark(ierr.ErrDatabase)
	}

	var configs []*contractline.ServiceConfiguration
	err = r.client.Querier(ctx).SelectContext(ctx, &configs, sqlx.Rebind(sqlx.DOLLAR, query), args...)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list service configurations").
			Mark(ierr.ErrDatabase)
	}
	return configs, nil
}

func (r *serviceConfigurationRepository) ListByContractLine(ctx context.Context, contractLineID string) ([]*contractline.ServiceConfiguration, error) {
	var configs []*contractline.ServiceConfiguration
	err := r.client.Querier(ctx).SelectContext(ctx, &configs, `
		SELECT * FROM service_configurations
		WHERE contract_line_id = $1 AND tenant_id = $2 AND status = $3`,
		contractLineID, types.GetTenantID(ctx), types.StatusPublished)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list service configurations").
			Mark(ierr.ErrDatabase)
	}
	return configs, nil
}

type assignmentRepository struct {
	client postgres.IClient
	logger *logger.Logger
}

// NewAssignmentRepository creates a postgres backed plan assignment repository
func NewAssignmentRepository(client postgres.IClient, logger *logger.Logger) contractline.AssignmentRepository {
	return &assignmentRepository{client: client, logger: logger}
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *contractline.PlanAssignment) error {
	_, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO plan_assignments (
			id, client_id, contract_line_id, start_date, end_date,
			tenant_id, status, created_at, updated_at, created_by, updated_by
		) VALUES (
			:id, :client_id, :contract_line_id, :start_date, :end_date,
			:tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
		)`, assignment)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return ierr.WithError(err).
				WithHint("This plan assignment already exists").
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create plan assignment").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *assignmentRepository) Get(ctx context.Context, id string) (*contractline.PlanAssignment, error) {
	var assignment contractline.PlanAssignment
	err := r.client.Querier(ctx).GetContext(ctx, &assignment, `
		SELECT * FROM plan_assignments
		WHERE id = $1 AND tenant_id = $2 AND status != $3`,
		id, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ierr.NewError("plan assignment not found").
				WithHintf("Plan assignment with ID %s was not found", id).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get plan assignment").
			Mark(ierr.ErrDatabase)
	}
	return &assignment, nil
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *contractline.PlanAssignment) error {
	assignment.Touch(ctx)
	result, err := r.client.Querier(ctx).NamedExecContext(ctx, `
		UPDATE plan_assignments SET
			start_date = :start_date, end_date = :end_date, status = :status,
			updated_at = :updated_at, updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`, assignment)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update plan assignment").
			Mark(ierr.ErrDatabase)
	}
	return requireRowsAffected(result, "plan assignment")
}

func (r *assignmentRepository) ListByClient(ctx context.Context, clientID string) ([]*contractline.PlanAssignment, error) {
	var assignments []*contractline.PlanAssignment
	err := r.client.Querier(ctx).SelectContext(ctx, &assignments, `
		SELECT * FROM plan_assignments
		WHERE client_id = $1 AND tenant_id = $2 AND status != $3
		ORDER BY start_date`,
		clientID, types.GetTenantID(ctx), types.StatusDeleted)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plan assignments").
			Mark(ierr.ErrDatabase)
	}
	return assignments, nil
}

// requireRowsAffected maps a zero row update to a not found error
func requireRowsAffected(result sql.Result, entity string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to read update result").
			Mark(ierr.ErrDatabase)
	}
	if rows == 0 {
		return ierr.NewError(entity + " not found").
			WithHintf("No %s row was updated", entity).
			Mark(ierr.ErrNotFound)
	}
	return nil
}
