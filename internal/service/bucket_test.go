package service

import (
	"context"
	"testing"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type BucketServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BucketService
	params  ServiceParams
}

func TestBucketService(t *testing.T) {
	suite.Run(t, new(BucketServiceSuite))
}

func (s *BucketServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.params = ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		Cache:             s.GetCache(),
		ContractLineRepo:  s.GetStores().ContractLineRepo,
		ServiceConfigRepo: s.GetStores().ServiceConfigRepo,
		AssignmentRepo:    s.GetStores().AssignmentRepo,
		BillingCycleRepo:  s.GetStores().BillingCycleRepo,
		BucketLedgerRepo:  s.GetStores().BucketLedgerRepo,
	}
	s.service = NewBucketService(s.params)
}

// setupBucketPlan seeds a monthly bucket plan and returns the ledger key
func (s *BucketServiceSuite) setupBucketPlan(totalMinutes int64, overageRate *decimal.Decimal, allowRollover bool) bucket.LedgerKey {
	line := &contractline.ContractLine{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONTRACT_LINE),
		Name:             "Support Bucket",
		BillingFrequency: types.BILLING_FREQUENCY_MONTHLY,
		PlanType:         types.PlanTypeBucket,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ContractLineRepo.Create(s.GetContext(), line))

	cfg := &contractline.ServiceConfiguration{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SERVICE_CONFIG),
		ContractLineID:    line.ID,
		ServiceID:         "svc_support",
		ConfigurationType: types.PlanTypeBucket,
		Quantity:          decimal.NewFromInt(1),
		Bucket: &contractline.JSONBBucketConfig{
			TotalMinutes:  totalMinutes,
			OverageRate:   overageRate,
			AllowRollover: allowRollover,
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ServiceConfigRepo.Create(s.GetContext(), cfg))

	return bucket.LedgerKey{
		ClientID:       "client_1",
		ServiceID:      "svc_support",
		ContractLineID: line.ID,
	}
}

func (s *BucketServiceSuite) TestConsumptionDerivedState() {
	key := s.setupBucketPlan(600, nil, false)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	state, err := s.service.RecordConsumption(s.GetContext(), key, 200, periodDate)
	s.NoError(err)
	s.Equal(int64(600), state.TotalAvailable)
	s.Equal(int64(200), state.Consumed)
	s.Equal(int64(400), state.Remaining)
	s.Equal(int64(0), state.Overage)
	s.Equal(state.TotalAvailable, state.Remaining+state.Consumed)

	// The ledger covers the calendar month of the consumption date
	s.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), state.Ledger.PeriodStart)
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), state.Ledger.PeriodEnd)
}

func (s *BucketServiceSuite) TestOverageWithConfiguredRate() {
	rate := decimal.NewFromFloat(2.50)
	key := s.setupBucketPlan(600, &rate, false)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	state, err := s.service.RecordConsumption(s.GetContext(), key, 700, periodDate)
	s.NoError(err)
	s.Equal(int64(700), state.Consumed)
	s.Equal(int64(0), state.Remaining)
	s.Equal(int64(100), state.Overage)
	s.True(state.BillableOverageAmount().Equal(decimal.NewFromInt(250)))
}

func (s *BucketServiceSuite) TestOverageWithoutRateFailsWrite() {
	key := s.setupBucketPlan(600, nil, false)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.RecordConsumption(s.GetContext(), key, 400, periodDate)
	s.NoError(err)

	_, err = s.service.RecordConsumption(s.GetContext(), key, 300, periodDate)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrOverageUnderpriced))

	// The failed write left the ledger untouched
	state, err := s.service.GetLedgerState(s.GetContext(), key, periodDate)
	s.NoError(err)
	s.Equal(int64(400), state.Consumed)
}

func (s *BucketServiceSuite) TestRolloverCarriesRemainingNotTotal() {
	key := s.setupBucketPlan(600, nil, true)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.RecordConsumption(s.GetContext(), key, 200, periodDate)
	s.NoError(err)

	next, err := s.service.RolloverPeriod(s.GetContext(), key, periodDate)
	s.NoError(err)
	s.Equal(int64(400), next.RolledOverRemainder, "rollover carries remaining, not total available")
	s.Equal(int64(600), next.TotalAllotment)
	s.Equal(int64(1000), next.TotalAvailable())
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), next.PeriodStart)
}

func (s *BucketServiceSuite) TestRolloverIsIdempotent() {
	key := s.setupBucketPlan(600, nil, true)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.RecordConsumption(s.GetContext(), key, 200, periodDate)
	s.NoError(err)

	first, err := s.service.RolloverPeriod(s.GetContext(), key, periodDate)
	s.NoError(err)

	second, err := s.service.RolloverPeriod(s.GetContext(), key, periodDate)
	s.NoError(err)
	s.Equal(first.ID, second.ID)
	s.Equal(first.RolledOverRemainder, second.RolledOverRemainder)
	s.Equal(int64(1000), second.TotalAvailable())
}

func (s *BucketServiceSuite) TestRolloverDisabledCarriesNothing() {
	key := s.setupBucketPlan(600, nil, false)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.RecordConsumption(s.GetContext(), key, 200, periodDate)
	s.NoError(err)

	next, err := s.service.RolloverPeriod(s.GetContext(), key, periodDate)
	s.NoError(err)
	s.Equal(int64(0), next.RolledOverRemainder)
	s.Equal(int64(600), next.TotalAvailable())
}

func (s *BucketServiceSuite) TestUnconfiguredServiceFails() {
	key := bucket.LedgerKey{
		ClientID:       "client_1",
		ServiceID:      "svc_unknown",
		ContractLineID: "plan_unknown",
	}
	_, err := s.service.RecordConsumption(s.GetContext(), key, 10, s.GetNow())
	s.Error(err)
	s.True(ierr.IsNotFound(err) || ierr.IsNotConfigured(err))
}

func (s *BucketServiceSuite) TestExhaustedRetriesSurfaceTransientFailure() {
	key := s.setupBucketPlan(600, nil, false)
	periodDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.RecordConsumption(s.GetContext(), key, 100, periodDate)
	s.NoError(err)

	params := s.params
	params.BucketLedgerRepo = &alwaysConflictedLedgerRepo{Repository: s.GetStores().BucketLedgerRepo}
	conflicted := NewBucketService(params)

	_, err = conflicted.RecordConsumption(s.GetContext(), key, 100, periodDate)
	s.Error(err)
	s.True(ierr.IsTransientFailure(err))
}

func (s *BucketServiceSuite) TestLedgerUsesBillingCycleBounds() {
	key := s.setupBucketPlan(600, nil, false)

	// An explicit billing cycle overrides the calendar period
	cycleStart := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	cycleEnd := time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC)
	cycleSvc := NewBillingCycleService(s.params)
	resp, err := cycleSvc.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		CycleType:      types.BILLING_FREQUENCY_MONTHLY,
		RequestedStart: lo.ToPtr(cycleStart),
	}, cycleStart)
	s.NoError(err)
	s.Nil(resp.Conflict)

	state, err := s.service.RecordConsumption(s.GetContext(), key, 50, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC))
	s.NoError(err)
	s.Equal(cycleStart, state.Ledger.PeriodStart)
	s.Equal(cycleEnd, state.Ledger.PeriodEnd)
}

// alwaysConflictedLedgerRepo simulates a ledger under constant
// concurrent write load
type alwaysConflictedLedgerRepo struct {
	bucket.Repository
}

func (r *alwaysConflictedLedgerRepo) Update(ctx context.Context, ledger *bucket.BucketLedger, expectedVersion int) error {
	return ierr.NewError("bucket ledger version conflict").
		Mark(ierr.ErrVersionConflict)
}
