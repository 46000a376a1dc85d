package service

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"
)

type BillingCycleServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BillingCycleService
}

func TestBillingCycleService(t *testing.T) {
	suite.Run(t, new(BillingCycleServiceSuite))
}

func (s *BillingCycleServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBillingCycleService(ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		DB:               s.GetDB(),
		Cache:            s.GetCache(),
		BillingCycleRepo: s.GetStores().BillingCycleRepo,
	})
}

func (s *BillingCycleServiceSuite) TestFirstCycleRequiresCycleType() {
	_, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID: "client_1",
	}, s.GetNow())
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrValidation))
}

func (s *BillingCycleServiceSuite) TestSequentialCyclesShareBoundaries() {
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:  "client_1",
		CycleType: types.BILLING_FREQUENCY_MONTHLY,
	}, asOf)
	s.NoError(err)
	s.Nil(first.Conflict)
	s.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), first.Cycle.PeriodStart)
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), first.Cycle.PeriodEnd)

	// A cycle starting exactly where the previous one ends is not a
	// conflict; the intervals are half open.
	second, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID: "client_1",
	}, asOf)
	s.NoError(err)
	s.Nil(second.Conflict)
	s.Equal(first.Cycle.PeriodEnd, second.Cycle.PeriodStart)
	s.Equal(types.BILLING_FREQUENCY_MONTHLY, second.Cycle.CycleType)
}

func (s *BillingCycleServiceSuite) TestConflictSuggestedDateIsRetrySafe() {
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:  "client_1",
		CycleType: types.BILLING_FREQUENCY_MONTHLY,
	}, asOf)
	s.NoError(err)

	// Requesting a start inside the existing cycle conflicts
	requested := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	resp, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(requested),
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Cycle)
	s.NotNil(resp.Conflict)
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), resp.Conflict.SuggestedDate)
	s.Len(resp.Conflict.OverlappingCycleIDs, 1)

	// Retrying with the suggested date is guaranteed to succeed
	resp, err = s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(resp.Conflict.SuggestedDate),
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Conflict)
	s.NotNil(resp.Cycle)
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), resp.Cycle.PeriodStart)
}

func (s *BillingCycleServiceSuite) TestConflictSuggestionSkipsLaterCycles() {
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:  "client_1",
		CycleType: types.BILLING_FREQUENCY_MONTHLY,
	}, asOf)
	s.NoError(err)

	// A later cycle with a gap after the first one
	gapped, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(time.Date(2025, 4, 25, 0, 0, 0, 0, time.UTC)),
	}, asOf)
	s.NoError(err)
	s.Require().NotNil(gapped.Cycle)
	s.Equal(time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), gapped.Cycle.PeriodEnd)

	// A start inside the first cycle conflicts. The end of the first
	// cycle is not a usable suggestion, a month from there would run
	// into the gapped cycle, so the suggestion skips past it.
	resp, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)),
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Cycle)
	s.Require().NotNil(resp.Conflict)
	s.Equal(time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), resp.Conflict.SuggestedDate)
	s.Len(resp.Conflict.OverlappingCycleIDs, 1)

	// Retrying with the suggestion succeeds on the first attempt
	resp, err = s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(resp.Conflict.SuggestedDate),
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Conflict)
	s.Require().NotNil(resp.Cycle)
	s.Equal(time.Date(2025, 5, 25, 0, 0, 0, 0, time.UTC), resp.Cycle.PeriodStart)
}

func (s *BillingCycleServiceSuite) TestEarlyCreationFlaggedButSucceeds() {
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	first, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:  "client_1",
		CycleType: types.BILLING_FREQUENCY_MONTHLY,
	}, asOf)
	s.NoError(err)
	s.False(first.IsEarly, "a client's first cycle is never early")

	// asOf is still inside March, but the April cycle can be created
	resp, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID: "client_1",
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Conflict)
	s.NotNil(resp.Cycle)
	s.True(resp.IsEarly)

	// A requested start at or past the current period end is not early
	resp, err = s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:       "client_1",
		RequestedStart: lo.ToPtr(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)),
	}, asOf)
	s.NoError(err)
	s.NotNil(resp.Cycle)
	s.False(resp.IsEarly)
}

func (s *BillingCycleServiceSuite) TestNextCycleStatusAgreesWithCreate() {
	asOf := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID:  "client_1",
		CycleType: types.BILLING_FREQUENCY_MONTHLY,
	}, asOf)
	s.NoError(err)

	status, err := s.service.GetNextCycleStatus(s.GetContext(), "client_1", asOf)
	s.NoError(err)
	s.True(status.CanCreate)
	s.True(status.IsEarly, "asOf precedes the current period end")
	s.Equal(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), status.PeriodStart)
	s.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), status.PeriodEnd)

	resp, err := s.service.CreateNextCycle(s.GetContext(), &dto.CreateBillingCycleRequest{
		ClientID: "client_1",
	}, asOf)
	s.NoError(err)
	s.Nil(resp.Conflict)
	s.Equal(status.PeriodStart, resp.Cycle.PeriodStart)
	s.Equal(status.PeriodEnd, resp.Cycle.PeriodEnd)
	s.Equal(status.IsEarly, resp.IsEarly)

	// After the period has ended the next creation is no longer early
	status, err = s.service.GetNextCycleStatus(s.GetContext(), "client_1", time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC))
	s.NoError(err)
	s.False(status.IsEarly)
}

func (s *BillingCycleServiceSuite) TestStatusForUnknownClient() {
	_, err := s.service.GetNextCycleStatus(s.GetContext(), "client_unknown", s.GetNow())
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}
