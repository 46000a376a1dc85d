package contractline

import (
	"context"
)

// Repository defines the interface for contract line persistence operations
type Repository interface {
	// Create creates a new contract line
	Create(ctx context.Context, line *ContractLine) error

	// Get retrieves a contract line by ID
	Get(ctx context.Context, id string) (*ContractLine, error)

	// Update updates an existing contract line
	Update(ctx context.Context, line *ContractLine) error

	// List retrieves all contract lines for the tenant
	List(ctx context.Context) ([]*ContractLine, error)
}

// ServiceConfigurationRepository persists per (plan, service) configurations
type ServiceConfigurationRepository interface {
	// Create creates a new service configuration
	Create(ctx context.Context, config *ServiceConfiguration) error

	// Get retrieves a service configuration by ID
	Get(ctx context.Context, id string) (*ServiceConfiguration, error)

	// Update updates an existing service configuration
	Update(ctx context.Context, config *ServiceConfiguration) error

	// ListByService retrieves all configurations covering a service
	// across the given contract lines
	ListByService(ctx context.Context, serviceID string, contractLineIDs []string) ([]*ServiceConfiguration, error)

	// ListByContractLine retrieves all configurations of a contract line
	ListByContractLine(ctx context.Context, contractLineID string) ([]*ServiceConfiguration, error)
}

// AssignmentRepository persists client to plan assignments
type AssignmentRepository interface {
	// Create creates a new plan assignment
	Create(ctx context.Context, assignment *PlanAssignment) error

	// Get retrieves a plan assignment by ID
	Get(ctx context.Context, id string) (*PlanAssignment, error)

	// Update updates an existing plan assignment
	Update(ctx context.Context, assignment *PlanAssignment) error

	// ListByClient retrieves all assignments for a client
	ListByClient(ctx context.Context, clientID string) ([]*PlanAssignment, error)
}
