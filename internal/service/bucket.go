package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/cenkalti/backoff/v4"
)

// consumptionMaxRetries bounds the optimistic retry loop around ledger
// writes before the conflict surfaces as a transient failure.
const consumptionMaxRetries = 4

// BucketService tracks consumption against prepaid allotments
type BucketService interface {
	// RecordConsumption adds quantity to the ledger for the period
	// covering periodDate, creating the ledger on first use. Overage
	// is billable only when the bucket configuration prices it; unpriced
	// overage fails the write rather than billing at zero.
	RecordConsumption(ctx context.Context, key bucket.LedgerKey, quantity int64, periodDate time.Time) (*bucket.LedgerState, error)

	// RolloverPeriod carries the remaining capacity of the period
	// covering asOf into the next period's ledger. Idempotent: repeat
	// calls observe the RolledOverAt marker and return the next ledger
	// unchanged.
	RolloverPeriod(ctx context.Context, key bucket.LedgerKey, asOf time.Time) (*bucket.BucketLedger, error)

	// GetLedgerState returns the derived ledger view for the period
	// covering asOf without writing anything
	GetLedgerState(ctx context.Context, key bucket.LedgerKey, asOf time.Time) (*bucket.LedgerState, error)
}

type bucketService struct {
	ServiceParams
}

// NewBucketService creates a new bucket ledger service
func NewBucketService(params ServiceParams) BucketService {
	return &bucketService{ServiceParams: params}
}

func (s *bucketService) RecordConsumption(ctx context.Context, key bucket.LedgerKey, quantity int64, periodDate time.Time) (*bucket.LedgerState, error) {
	if quantity <= 0 {
		return nil, ierr.NewError("consumption quantity must be positive").
			WithHintf("Got %d", quantity).
			Mark(ierr.ErrValidation)
	}

	cfg, line, err := s.bucketConfiguration(ctx, key)
	if err != nil {
		return nil, err
	}

	operation := func() (*bucket.LedgerState, error) {
		ledger, err := s.findOrCreateLedger(ctx, key, periodDate, cfg, line.BillingFrequency)
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		newConsumed := ledger.Consumed + quantity
		if newConsumed > ledger.TotalAvailable() && cfg.OverageRate == nil {
			return nil, backoff.Permanent(ierr.NewError("bucket overage has no configured rate").
				WithHint("Configure an overage rate on the bucket before consuming beyond the allotment").
				WithReportableDetails(map[string]any{
					"contract_line_id": key.ContractLineID,
					"service_id":       key.ServiceID,
					"total_available":  ledger.TotalAvailable(),
					"would_consume":    newConsumed,
				}).
				Mark(ierr.ErrOverageUnderpriced))
		}

		expected := ledger.Version
		ledger.Consumed = newConsumed
		if err := s.BucketLedgerRepo.Update(ctx, ledger, expected); err != nil {
			if ierr.IsVersionConflict(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}

		return bucket.NewLedgerState(ledger, cfg.OverageRate), nil
	}

	state, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), consumptionMaxRetries), ctx))
	if err != nil {
		if ierr.IsVersionConflict(err) {
			return nil, ierr.WithError(err).
				WithHint("The ledger is under concurrent load, retry the operation").
				Mark(ierr.ErrTransientFailure)
		}
		return nil, err
	}

	s.Logger.Debugw("recorded bucket consumption",
		"client_id", key.ClientID,
		"service_id", key.ServiceID,
		"quantity", quantity,
		"remaining", state.Remaining,
		"overage", state.Overage)

	return state, nil
}

func (s *bucketService) RolloverPeriod(ctx context.Context, key bucket.LedgerKey, asOf time.Time) (*bucket.BucketLedger, error) {
	cfg, line, err := s.bucketConfiguration(ctx, key)
	if err != nil {
		return nil, err
	}

	var next *bucket.BucketLedger
	err = s.DB.WithTx(ctx, func(ctx context.Context) error {
		current, err := s.BucketLedgerRepo.GetForPeriod(ctx, key, asOf)
		if err != nil {
			return err
		}

		nextStart, nextEnd, err := s.periodBounds(ctx, key.ClientID, current.PeriodEnd, line.BillingFrequency)
		if err != nil {
			return err
		}

		if current.RolledOverAt != nil {
			next, err = s.BucketLedgerRepo.GetForPeriod(ctx, key, nextStart)
			return err
		}

		var remainder int64
		if cfg.AllowRollover {
			remainder = current.Remaining()
		}

		next = &bucket.BucketLedger{
			ID:                  types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUCKET_LEDGER),
			ClientID:            key.ClientID,
			ServiceID:           key.ServiceID,
			ContractLineID:      key.ContractLineID,
			PeriodStart:         nextStart,
			PeriodEnd:           nextEnd,
			TotalAllotment:      cfg.TotalMinutes,
			RolledOverRemainder: remainder,
			Version:             1,
			BaseModel:           types.GetDefaultBaseModel(ctx),
		}
		if err := s.BucketLedgerRepo.Create(ctx, next); err != nil {
			if !ierr.IsAlreadyExists(err) {
				return err
			}
			// The next period's ledger already exists from earlier
			// consumption; fold the remainder into it instead.
			next, err = s.BucketLedgerRepo.GetForPeriod(ctx, key, nextStart)
			if err != nil {
				return err
			}
			next.RolledOverRemainder += remainder
			if err := s.BucketLedgerRepo.Update(ctx, next, next.Version); err != nil {
				return err
			}
		}

		rolledAt := asOf.UTC()
		current.RolledOverAt = &rolledAt
		return s.BucketLedgerRepo.Update(ctx, current, current.Version)
	})
	if err != nil {
		return nil, err
	}

	return next, nil
}

func (s *bucketService) GetLedgerState(ctx context.Context, key bucket.LedgerKey, asOf time.Time) (*bucket.LedgerState, error) {
	cfg, _, err := s.bucketConfiguration(ctx, key)
	if err != nil {
		return nil, err
	}
	ledger, err := s.BucketLedgerRepo.GetForPeriod(ctx, key, asOf)
	if err != nil {
		return nil, err
	}
	return bucket.NewLedgerState(ledger, cfg.OverageRate), nil
}

// bucketConfiguration loads the bucket payload and its contract line
// for the ledger key
func (s *bucketService) bucketConfiguration(ctx context.Context, key bucket.LedgerKey) (*contractline.BucketConfig, *contractline.ContractLine, error) {
	line, err := s.ContractLineRepo.Get(ctx, key.ContractLineID)
	if err != nil {
		return nil, nil, err
	}

	configs, err := s.ServiceConfigRepo.ListByService(ctx, key.ServiceID, []string{key.ContractLineID})
	if err != nil {
		return nil, nil, err
	}
	for _, cfg := range configs {
		if cfg.IsBucket() {
			return cfg.BucketConfig(), line, nil
		}
	}

	return nil, nil, ierr.NewError("no bucket configuration for service").
		WithHintf("Contract line %s has no bucket configuration for service %s", key.ContractLineID, key.ServiceID).
		Mark(ierr.ErrNotConfigured)
}

// periodBounds returns the half open period containing at: the
// client's billing cycle covering it when one exists, otherwise the
// calendar period for the contract line's billing frequency.
func (s *bucketService) periodBounds(ctx context.Context, clientID string, at time.Time, frequency types.BillingFrequency) (time.Time, time.Time, error) {
	cycles, err := s.BillingCycleRepo.ListByClient(ctx, clientID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	for _, cycle := range cycles {
		if cycle.Covers(at) {
			return cycle.PeriodStart, cycle.PeriodEnd, nil
		}
	}
	return types.CalendarPeriodBounds(at, frequency)
}

// findOrCreateLedger returns the ledger covering at, creating it with
// the configured allotment on first use. A create race resolves by
// re-reading the winner's row.
func (s *bucketService) findOrCreateLedger(ctx context.Context, key bucket.LedgerKey, at time.Time, cfg *contractline.BucketConfig, frequency types.BillingFrequency) (*bucket.BucketLedger, error) {
	ledger, err := s.BucketLedgerRepo.GetForPeriod(ctx, key, at)
	if err == nil {
		return ledger, nil
	}
	if !ierr.IsNotFound(err) {
		return nil, err
	}

	periodStart, periodEnd, err := s.periodBounds(ctx, key.ClientID, at, frequency)
	if err != nil {
		return nil, err
	}

	ledger = &bucket.BucketLedger{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BUCKET_LEDGER),
		ClientID:       key.ClientID,
		ServiceID:      key.ServiceID,
		ContractLineID: key.ContractLineID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		TotalAllotment: cfg.TotalMinutes,
		Version:        1,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
	if err := s.BucketLedgerRepo.Create(ctx, ledger); err != nil {
		if ierr.IsAlreadyExists(err) {
			return s.BucketLedgerRepo.GetForPeriod(ctx, key, at)
		}
		return nil, err
	}

	return ledger, nil
}
