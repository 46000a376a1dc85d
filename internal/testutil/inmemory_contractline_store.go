package testutil

import (
	"context"

	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
)

// InMemoryContractLineStore implements contractline.Repository
type InMemoryContractLineStore struct {
	*InMemoryStore[*contractline.ContractLine]
}

func NewInMemoryContractLineStore() *InMemoryContractLineStore {
	return &InMemoryContractLineStore{
		InMemoryStore: NewInMemoryStore[*contractline.ContractLine](),
	}
}

func (s *InMemoryContractLineStore) Create(ctx context.Context, line *contractline.ContractLine) error {
	if line == nil {
		return ierr.NewError("contract line cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, line.ID, line)
}

func (s *InMemoryContractLineStore) Get(ctx context.Context, id string) (*contractline.ContractLine, error) {
	line, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Contract line with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return line, nil
}

func (s *InMemoryContractLineStore) Update(ctx context.Context, line *contractline.ContractLine) error {
	return s.InMemoryStore.Update(ctx, line.ID, line)
}

func (s *InMemoryContractLineStore) List(ctx context.Context) ([]*contractline.ContractLine, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, line *contractline.ContractLine, _ interface{}) bool {
		return line.TenantID == types.GetTenantID(ctx) && line.Status != types.StatusDeleted
	}, func(i, j *contractline.ContractLine) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

// InMemoryServiceConfigurationStore implements contractline.ServiceConfigurationRepository
type InMemoryServiceConfigurationStore struct {
	*InMemoryStore[*contractline.ServiceConfiguration]
}

func NewInMemoryServiceConfigurationStore() *InMemoryServiceConfigurationStore {
	return &InMemoryServiceConfigurationStore{
		InMemoryStore: NewInMemoryStore[*contractline.ServiceConfiguration](),
	}
}

func (s *InMemoryServiceConfigurationStore) Create(ctx context.Context, config *contractline.ServiceConfiguration) error {
	if config == nil {
		return ierr.NewError("service configuration cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, config.ID, config)
}

func (s *InMemoryServiceConfigurationStore) Get(ctx context.Context, id string) (*contractline.ServiceConfiguration, error) {
	config, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Service configuration with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return config, nil
}

func (s *InMemoryServiceConfigurationStore) Update(ctx context.Context, config *contractline.ServiceConfiguration) error {
	return s.InMemoryStore.Update(ctx, config.ID, config)
}

func (s *InMemoryServiceConfigurationStore) ListByService(ctx context.Context, serviceID string, contractLineIDs []string) ([]*contractline.ServiceConfiguration, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, cfg *contractline.ServiceConfiguration, _ interface{}) bool {
		if cfg.TenantID != types.GetTenantID(ctx) || cfg.Status == types.StatusDeleted {
			return false
		}
		return cfg.ServiceID == serviceID && lo.Contains(contractLineIDs, cfg.ContractLineID)
	}, func(i, j *contractline.ServiceConfiguration) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

func (s *InMemoryServiceConfigurationStore) ListByContractLine(ctx context.Context, contractLineID string) ([]*contractline.ServiceConfiguration, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, cfg *contractline.ServiceConfiguration, _ interface{}) bool {
		if cfg.TenantID != types.GetTenantID(ctx) || cfg.Status == types.StatusDeleted {
			return false
		}
		return cfg.ContractLineID == contractLineID
	}, func(i, j *contractline.ServiceConfiguration) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})
}

// InMemoryAssignmentStore implements contractline.AssignmentRepository
type InMemoryAssignmentStore struct {
	*InMemoryStore[*contractline.PlanAssignment]
}

func NewInMemoryAssignmentStore() *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{
		InMemoryStore: NewInMemoryStore[*contractline.PlanAssignment](),
	}
}

func (s *InMemoryAssignmentStore) Create(ctx context.Context, assignment *contractline.PlanAssignment) error {
	if assignment == nil {
		return ierr.NewError("plan assignment cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return s.InMemoryStore.Create(ctx, assignment.ID, assignment)
}

func (s *InMemoryAssignmentStore) Get(ctx context.Context, id string) (*contractline.PlanAssignment, error) {
	assignment, err := s.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHintf("Plan assignment with ID %s was not found", id).
			Mark(ierr.ErrNotFound)
	}
	return assignment, nil
}

func (s *InMemoryAssignmentStore) Update(ctx context.Context, assignment *contractline.PlanAssignment) error {
	return s.InMemoryStore.Update(ctx, assignment.ID, assignment)
}

func (s *InMemoryAssignmentStore) ListByClient(ctx context.Context, clientID string) ([]*contractline.PlanAssignment, error) {
	return s.InMemoryStore.List(ctx, nil, func(ctx context.Context, a *contractline.PlanAssignment, _ interface{}) bool {
		if a.TenantID != types.GetTenantID(ctx) || a.Status == types.StatusDeleted {
			return false
		}
		return a.ClientID == clientID
	}, func(i, j *contractline.PlanAssignment) bool {
		return i.StartDate.Before(j.StartDate)
	})
}
