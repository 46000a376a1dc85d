package service

import (
	"context"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
)

// UsageService records client usage against the right contract line
type UsageService interface {
	// RecordUsage resolves the billable plan for the record, consumes
	// bucket capacity when the chosen plan is a bucket, and persists
	// the record, all or nothing. An unresolvable plan choice returns
	// the ambiguity instead of writing anything.
	RecordUsage(ctx context.Context, req *dto.RecordUsageRequest) (*dto.RecordUsageResponse, error)
}

type usageService struct {
	ServiceParams
	rates        RateService
	disambiguate DisambiguationService
	buckets      BucketService
}

// NewUsageService creates a new usage recording service
func NewUsageService(params ServiceParams) UsageService {
	return &usageService{
		ServiceParams: params,
		rates:         NewRateService(params),
		disambiguate:  NewDisambiguationService(params),
		buckets:       NewBucketService(params),
	}
}

func (s *usageService) RecordUsage(ctx context.Context, req *dto.RecordUsageRequest) (*dto.RecordUsageResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	candidates, err := s.rates.ResolveConfigurations(ctx, req.ClientID, req.ServiceID, req.UsageDate)
	if err != nil {
		return nil, err
	}

	chosen, ambiguity, err := s.chooseCandidate(ctx, req, candidates)
	if err != nil {
		return nil, err
	}
	if ambiguity != nil {
		return &dto.RecordUsageResponse{Ambiguity: ambiguity}, nil
	}

	response := &dto.RecordUsageResponse{}
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		if chosen.IsBucket() {
			state, err := s.buckets.RecordConsumption(ctx, bucket.LedgerKey{
				ClientID:       req.ClientID,
				ServiceID:      req.ServiceID,
				ContractLineID: chosen.ContractLineID,
			}, req.Quantity.IntPart(), req.UsageDate)
			if err != nil {
				return err
			}
			response.LedgerState = state
		}

		record := req.ToUsageRecord(ctx)
		record.ContractLineID = &chosen.ContractLineID
		if err := record.Validate(); err != nil {
			return err
		}
		if err := s.UsageRepo.Create(ctx, record); err != nil {
			return err
		}
		response.Record = record
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Debugw("recorded usage",
		"client_id", req.ClientID,
		"service_id", req.ServiceID,
		"contract_line_id", chosen.ContractLineID,
		"quantity", req.Quantity)

	return response, nil
}

// chooseCandidate honors an explicit contract line choice on the
// request before falling back to disambiguation
func (s *usageService) chooseCandidate(ctx context.Context, req *dto.RecordUsageRequest, candidates []*contractline.ServiceConfiguration) (*contractline.ServiceConfiguration, *dto.AmbiguityResult, error) {
	if req.ContractLineID == nil {
		return s.disambiguate.ChooseContractLine(ctx, req.ClientID, candidates, req.UsageDate)
	}

	for _, candidate := range candidates {
		if candidate.ContractLineID == *req.ContractLineID {
			return candidate, nil, nil
		}
	}
	return nil, nil, ierr.NewError("requested contract line does not cover this service").
		WithHintf("Contract line %s has no configuration for service %s", *req.ContractLineID, req.ServiceID).
		Mark(ierr.ErrNotConfigured)
}
