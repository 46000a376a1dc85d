package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/samber/lo"
)

// DisambiguationService chooses which contract line a usage record
// bills against when a client has several plans covering the same
// service.
type DisambiguationService interface {
	// ChooseContractLine picks a configuration from the candidates. A
	// single candidate wins outright. With several candidates, exactly
	// one bucket configuration wins as long as its ledger for the
	// period covering asOf still has remaining capacity; an exhausted
	// bucket is never auto-preferred. Every other combination returns
	// an AmbiguityResult for the caller to resolve explicitly.
	ChooseContractLine(ctx context.Context, clientID string, candidates []*contractline.ServiceConfiguration, asOf time.Time) (*contractline.ServiceConfiguration, *dto.AmbiguityResult, error)
}

type disambiguationService struct {
	ServiceParams
}

// NewDisambiguationService creates a new plan disambiguation service
func NewDisambiguationService(params ServiceParams) DisambiguationService {
	return &disambiguationService{ServiceParams: params}
}

func (s *disambiguationService) ChooseContractLine(ctx context.Context, clientID string, candidates []*contractline.ServiceConfiguration, asOf time.Time) (*contractline.ServiceConfiguration, *dto.AmbiguityResult, error) {
	if len(candidates) == 0 {
		return nil, nil, ierr.NewError("no candidate configurations to choose from").
			WithHint("Resolve configurations before disambiguating").
			Mark(ierr.ErrNotConfigured)
	}

	if len(candidates) == 1 {
		return candidates[0], nil, nil
	}

	buckets := lo.Filter(candidates, func(c *contractline.ServiceConfiguration, _ int) bool {
		return c.IsBucket()
	})

	if len(buckets) > 1 {
		return nil, &dto.AmbiguityResult{
			Reason:     "multiple bucket plans cover this service",
			Candidates: candidates,
		}, nil
	}

	if len(buckets) == 1 {
		chosen := buckets[0]
		exhausted, err := s.bucketExhausted(ctx, clientID, chosen, asOf)
		if err != nil {
			return nil, nil, err
		}
		if !exhausted {
			s.Logger.Debugw("disambiguation preferred bucket plan",
				"client_id", clientID,
				"contract_line_id", chosen.ContractLineID,
				"service_id", chosen.ServiceID)
			return chosen, nil, nil
		}
		return nil, &dto.AmbiguityResult{
			Reason:     "the bucket plan covering this service has no remaining capacity",
			Candidates: candidates,
		}, nil
	}

	return nil, &dto.AmbiguityResult{
		Reason:     "multiple plans cover this service",
		Candidates: candidates,
	}, nil
}

// bucketExhausted reports whether the candidate's ledger for the
// period covering asOf exists and has zero remaining capacity. A
// missing ledger means the period is untouched, so the full allotment
// remains.
func (s *disambiguationService) bucketExhausted(ctx context.Context, clientID string, cfg *contractline.ServiceConfiguration, asOf time.Time) (bool, error) {
	key := bucket.LedgerKey{
		ClientID:       clientID,
		ServiceID:      cfg.ServiceID,
		ContractLineID: cfg.ContractLineID,
	}

	ledger, err := s.BucketLedgerRepo.GetForPeriod(ctx, key, asOf)
	if err != nil {
		if ierr.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return ledger.Remaining() == 0, nil
}
