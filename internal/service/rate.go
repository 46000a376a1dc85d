package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/samber/lo"
)

// RateService resolves the billable configurations for a client and
// service at a point in time.
type RateService interface {
	// ResolveConfigurations joins the client's plan assignments active
	// as of asOf with the service configurations those plans carry for
	// the service. An empty result is a configuration error, never a
	// silent zero rate.
	ResolveConfigurations(ctx context.Context, clientID, serviceID string, asOf time.Time) ([]*contractline.ServiceConfiguration, error)
}

type rateService struct {
	ServiceParams
}

// NewRateService creates a new rate resolution service
func NewRateService(params ServiceParams) RateService {
	return &rateService{ServiceParams: params}
}

func (s *rateService) ResolveConfigurations(ctx context.Context, clientID, serviceID string, asOf time.Time) ([]*contractline.ServiceConfiguration, error) {
	if clientID == "" || serviceID == "" {
		return nil, ierr.NewError("client id and service id are required").
			Mark(ierr.ErrValidation)
	}

	assignments, err := s.AssignmentRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	active := lo.Filter(assignments, func(a *contractline.PlanAssignment, _ int) bool {
		return a.ActiveAt(asOf)
	})
	if len(active) == 0 {
		return nil, s.notConfigured(clientID, serviceID, asOf)
	}

	contractLineIDs := lo.Uniq(lo.Map(active, func(a *contractline.PlanAssignment, _ int) string {
		return a.ContractLineID
	}))

	configs, err := s.ServiceConfigRepo.ListByService(ctx, serviceID, contractLineIDs)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, s.notConfigured(clientID, serviceID, asOf)
	}

	s.Logger.Debugw("resolved service configurations",
		"client_id", clientID,
		"service_id", serviceID,
		"candidates", len(configs))

	return configs, nil
}

func (s *rateService) notConfigured(clientID, serviceID string, asOf time.Time) error {
	return ierr.NewError("no billable configuration for service").
		WithHintf("Client %s has no active plan covering service %s", clientID, serviceID).
		WithReportableDetails(map[string]any{
			"client_id":  clientID,
			"service_id": serviceID,
			"as_of":      asOf,
		}).
		Mark(ierr.ErrNotConfigured)
}
