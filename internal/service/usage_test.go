package service

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/contractline"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type UsageServiceSuite struct {
	testutil.BaseServiceTestSuite
	service   UsageService
	usageDate time.Time
}

func TestUsageService(t *testing.T) {
	suite.Run(t, new(UsageServiceSuite))
}

func (s *UsageServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewUsageService(ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		Cache:             s.GetCache(),
		ContractLineRepo:  s.GetStores().ContractLineRepo,
		ServiceConfigRepo: s.GetStores().ServiceConfigRepo,
		AssignmentRepo:    s.GetStores().AssignmentRepo,
		BillingCycleRepo:  s.GetStores().BillingCycleRepo,
		BucketLedgerRepo:  s.GetStores().BucketLedgerRepo,
		UsageRepo:         s.GetStores().UsageRepo,
	})
	s.usageDate = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
}

// seedPlan creates a contract line with one service configuration and
// an open ended assignment for client_1, returning the line id
func (s *UsageServiceSuite) seedPlan(name, serviceID string, planType types.PlanType, configure func(cfg *contractline.ServiceConfiguration)) string {
	line := &contractline.ContractLine{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONTRACT_LINE),
		Name:             name,
		BillingFrequency: types.BILLING_FREQUENCY_MONTHLY,
		PlanType:         planType,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().ContractLineRepo.Create(s.GetContext(), line))

	cfg := &contractline.ServiceConfiguration{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SERVICE_CONFIG),
		ContractLineID:    line.ID,
		ServiceID:         serviceID,
		ConfigurationType: planType,
		Quantity:          decimal.NewFromInt(1),
		BaseModel:         types.GetDefaultBaseModel(s.GetContext()),
	}
	configure(cfg)
	s.Require().NoError(s.GetStores().ServiceConfigRepo.Create(s.GetContext(), cfg))

	s.Require().NoError(s.GetStores().AssignmentRepo.Create(s.GetContext(), &contractline.PlanAssignment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_ASSIGNMENT),
		ClientID:       "client_1",
		ContractLineID: line.ID,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}))

	return line.ID
}

func (s *UsageServiceSuite) seedHourlyPlan(serviceID string) string {
	return s.seedPlan("Hourly Support", serviceID, types.PlanTypeHourly, func(cfg *contractline.ServiceConfiguration) {
		cfg.Hourly = &contractline.JSONBHourlyConfig{
			HourlyRate: decimal.NewFromInt(120),
		}
	})
}

func (s *UsageServiceSuite) seedBucketPlan(serviceID string, totalMinutes int64) string {
	return s.seedPlan("Support Bucket", serviceID, types.PlanTypeBucket, func(cfg *contractline.ServiceConfiguration) {
		cfg.Bucket = &contractline.JSONBBucketConfig{
			TotalMinutes: totalMinutes,
		}
	})
}

func (s *UsageServiceSuite) recordUsage(quantity int64, contractLineID *string) (*dto.RecordUsageResponse, error) {
	return s.service.RecordUsage(s.GetContext(), &dto.RecordUsageRequest{
		ClientID:       "client_1",
		ServiceID:      "svc_support",
		Quantity:       decimal.NewFromInt(quantity),
		UsageDate:      s.usageDate,
		ContractLineID: contractLineID,
	})
}

func (s *UsageServiceSuite) persistedRecords() int {
	records, err := s.GetStores().UsageRepo.ListByClientAndService(s.GetContext(), "client_1", "svc_support",
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	return len(records)
}

func (s *UsageServiceSuite) TestRecordingRequiresConfiguration() {
	_, err := s.recordUsage(30, nil)
	s.Error(err)
	s.True(ierr.IsNotConfigured(err))
}

func (s *UsageServiceSuite) TestExpiredAssignmentsAreExcluded() {
	lineID := s.seedHourlyPlan("svc_support")

	// End the assignment before the usage date
	assignments, err := s.GetStores().AssignmentRepo.ListByClient(s.GetContext(), "client_1")
	s.Require().NoError(err)
	s.Require().Len(assignments, 1)
	assignments[0].EndDate = lo.ToPtr(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(s.GetStores().AssignmentRepo.Update(s.GetContext(), assignments[0]))

	_, err = s.recordUsage(30, nil)
	s.Error(err)
	s.True(ierr.IsNotConfigured(err))

	// An explicit line does not bypass assignment validity
	_, err = s.recordUsage(30, &lineID)
	s.Error(err)
	s.True(ierr.IsNotConfigured(err))
}

func (s *UsageServiceSuite) TestSingleCandidateWins() {
	lineID := s.seedHourlyPlan("svc_support")

	resp, err := s.recordUsage(30, nil)
	s.NoError(err)
	s.Nil(resp.Ambiguity)
	s.Nil(resp.LedgerState, "hourly plans carry no bucket ledger")
	s.Require().NotNil(resp.Record)
	s.Equal(lineID, *resp.Record.ContractLineID)
	s.Equal(1, s.persistedRecords())
}

func (s *UsageServiceSuite) TestBucketPreferredAmongMixedPlans() {
	s.seedHourlyPlan("svc_support")
	bucketLineID := s.seedBucketPlan("svc_support", 600)

	resp, err := s.recordUsage(200, nil)
	s.NoError(err)
	s.Nil(resp.Ambiguity)
	s.Require().NotNil(resp.Record)
	s.Equal(bucketLineID, *resp.Record.ContractLineID)

	s.Require().NotNil(resp.LedgerState, "bucket consumption reports ledger state")
	s.Equal(int64(200), resp.LedgerState.Consumed)
	s.Equal(int64(400), resp.LedgerState.Remaining)
}

func (s *UsageServiceSuite) TestExhaustedBucketFallsThroughToAmbiguity() {
	s.seedHourlyPlan("svc_support")
	s.seedBucketPlan("svc_support", 100)

	resp, err := s.recordUsage(100, nil)
	s.NoError(err)
	s.Require().NotNil(resp.LedgerState)
	s.Equal(int64(0), resp.LedgerState.Remaining)

	// The bucket is drained; it no longer wins automatically
	resp, err = s.recordUsage(30, nil)
	s.NoError(err)
	s.Require().NotNil(resp.Ambiguity)
	s.Nil(resp.Record)
	s.Len(resp.Ambiguity.Candidates, 2)

	s.Equal(1, s.persistedRecords(), "an ambiguous request writes nothing")
}

func (s *UsageServiceSuite) TestMultipleBucketsAreAlwaysAmbiguous() {
	s.seedBucketPlan("svc_support", 600)
	s.seedBucketPlan("svc_support", 300)

	resp, err := s.recordUsage(30, nil)
	s.NoError(err)
	s.Require().NotNil(resp.Ambiguity)
	s.Len(resp.Ambiguity.Candidates, 2)
	s.Equal(0, s.persistedRecords())
}

func (s *UsageServiceSuite) TestMultipleNonBucketPlansAreAmbiguous() {
	s.seedHourlyPlan("svc_support")
	s.seedHourlyPlan("svc_support")

	resp, err := s.recordUsage(30, nil)
	s.NoError(err)
	s.Require().NotNil(resp.Ambiguity)
	s.Equal(0, s.persistedRecords())
}

func (s *UsageServiceSuite) TestExplicitContractLineOverridesDisambiguation() {
	hourlyLineID := s.seedHourlyPlan("svc_support")
	s.seedBucketPlan("svc_support", 600)

	resp, err := s.recordUsage(30, &hourlyLineID)
	s.NoError(err)
	s.Nil(resp.Ambiguity)
	s.Nil(resp.LedgerState, "explicitly billing the hourly plan skips the bucket")
	s.Require().NotNil(resp.Record)
	s.Equal(hourlyLineID, *resp.Record.ContractLineID)
}

func (s *UsageServiceSuite) TestExplicitLineMustCoverTheService() {
	s.seedHourlyPlan("svc_support")
	otherLineID := s.seedHourlyPlan("svc_other")

	_, err := s.recordUsage(30, &otherLineID)
	s.Error(err)
	s.True(ierr.IsNotConfigured(err))
	s.Equal(0, s.persistedRecords())
}
