package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/billingcycle"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
)

// BillingCycleService manages the sequence of billing cycles per client
type BillingCycleService interface {
	// CreateNextCycle creates the cycle starting at the requested start
	// or, absent one, at the latest cycle's period end. Overlap with any
	// existing cycle returns a CycleConflict whose SuggestedDate is
	// guaranteed conflict free against every existing cycle, so a retry
	// with it succeeds. Creating ahead of the current period's end is
	// allowed; the response flags it as early, never blocks it.
	CreateNextCycle(ctx context.Context, req *dto.CreateBillingCycleRequest, asOf time.Time) (*dto.CreateBillingCycleResponse, error)

	// GetNextCycleStatus previews the next cycle without side effects.
	// Its answer agrees with what CreateNextCycle would do for the same
	// client with no requested start.
	GetNextCycleStatus(ctx context.Context, clientID string, asOf time.Time) (*dto.CycleStatus, error)
}

type billingCycleService struct {
	ServiceParams
}

// NewBillingCycleService creates a new billing cycle service
func NewBillingCycleService(params ServiceParams) BillingCycleService {
	return &billingCycleService{ServiceParams: params}
}

func (s *billingCycleService) CreateNextCycle(ctx context.Context, req *dto.CreateBillingCycleRequest, asOf time.Time) (*dto.CreateBillingCycleResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp := &dto.CreateBillingCycleResponse{}

	// The overlap check and the insert share one serializable
	// transaction so concurrent creators cannot both pass the check.
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		cycles, err := s.BillingCycleRepo.ListByClient(ctx, req.ClientID)
		if err != nil {
			return err
		}
		latest := latestCycle(cycles)

		cycleType := req.CycleType
		if cycleType == "" {
			if latest == nil {
				return ierr.NewError("cycle type is required for a client's first cycle").
					WithHint("Pass a cycle type when the client has no billing cycles yet").
					Mark(ierr.ErrValidation)
			}
			cycleType = latest.CycleType
		}

		start, err := s.effectiveStart(req, latest, cycleType, asOf)
		if err != nil {
			return err
		}
		end, err := types.NextPeriodStart(start, cycleType)
		if err != nil {
			return err
		}

		// Early creation is measured off the requested start, or off
		// asOf when the natural continuation is used.
		if latest != nil {
			basis := asOf
			if req.RequestedStart != nil {
				basis = req.RequestedStart.UTC()
			}
			resp.IsEarly = basis.Before(latest.PeriodEnd)
		}

		overlapping := lo.Filter(cycles, func(c *billingcycle.BillingCycle, _ int) bool {
			return c.Overlaps(start, end)
		})
		if len(overlapping) > 0 {
			suggested, err := nextClearStart(cycles, overlapping, cycleType)
			if err != nil {
				return err
			}
			resp.Conflict = &dto.CycleConflict{
				SuggestedDate: suggested,
				OverlappingCycleIDs: lo.Map(overlapping, func(c *billingcycle.BillingCycle, _ int) string {
					return c.ID
				}),
			}
			return nil
		}

		if resp.IsEarly {
			s.Logger.Warnw("creating billing cycle before the current period has ended",
				"client_id", req.ClientID,
				"current_period_end", latest.PeriodEnd,
				"as_of", asOf)
		}

		cycle := &billingcycle.BillingCycle{
			ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILLING_CYCLE),
			ClientID:    req.ClientID,
			CycleType:   cycleType,
			PeriodStart: start,
			PeriodEnd:   end,
			Version:     1,
			BaseModel:   types.GetDefaultBaseModel(ctx),
		}
		if err := cycle.Validate(); err != nil {
			return err
		}
		if err := s.BillingCycleRepo.Create(ctx, cycle); err != nil {
			return err
		}
		resp.Cycle = cycle
		return nil
	})
	if err != nil {
		return nil, err
	}

	return resp, nil
}

// nextClearStart advances past the blocking cycles' furthest period end
// until a full period fits without overlapping any existing cycle. The
// candidate strictly increases each step, so the loop terminates.
func nextClearStart(cycles, blocking []*billingcycle.BillingCycle, cycleType types.BillingFrequency) (time.Time, error) {
	suggested := maxPeriodEnd(blocking)
	for {
		end, err := types.NextPeriodStart(suggested, cycleType)
		if err != nil {
			return time.Time{}, err
		}
		stillBlocking := lo.Filter(cycles, func(c *billingcycle.BillingCycle, _ int) bool {
			return c.Overlaps(suggested, end)
		})
		if len(stillBlocking) == 0 {
			return suggested, nil
		}
		suggested = maxPeriodEnd(stillBlocking)
	}
}

func maxPeriodEnd(cycles []*billingcycle.BillingCycle) time.Time {
	return lo.MaxBy(cycles, func(a, b *billingcycle.BillingCycle) bool {
		return a.PeriodEnd.After(b.PeriodEnd)
	}).PeriodEnd
}

func (s *billingCycleService) GetNextCycleStatus(ctx context.Context, clientID string, asOf time.Time) (*dto.CycleStatus, error) {
	cycles, err := s.BillingCycleRepo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	latest := latestCycle(cycles)
	if latest == nil {
		return nil, ierr.NewError("client has no billing cycles").
			WithHint("Create the first cycle with an explicit cycle type").
			Mark(ierr.ErrNotFound)
	}

	start := latest.PeriodEnd
	end, err := types.NextPeriodStart(start, latest.CycleType)
	if err != nil {
		return nil, err
	}

	canCreate := !lo.SomeBy(cycles, func(c *billingcycle.BillingCycle) bool {
		return c.Overlaps(start, end)
	})

	return &dto.CycleStatus{
		CanCreate:   canCreate,
		IsEarly:     asOf.Before(latest.PeriodEnd),
		PeriodStart: start,
		PeriodEnd:   end,
	}, nil
}

// effectiveStart is the requested start when given, otherwise the
// natural continuation of the client's cycle sequence.
func (s *billingCycleService) effectiveStart(req *dto.CreateBillingCycleRequest, latest *billingcycle.BillingCycle, cycleType types.BillingFrequency, asOf time.Time) (time.Time, error) {
	if req.RequestedStart != nil {
		return req.RequestedStart.UTC(), nil
	}
	if latest != nil {
		return latest.PeriodEnd, nil
	}
	start, _, err := types.CalendarPeriodBounds(asOf, cycleType)
	return start, err
}

func latestCycle(cycles []*billingcycle.BillingCycle) *billingcycle.BillingCycle {
	if len(cycles) == 0 {
		return nil
	}
	return lo.MaxBy(cycles, func(a, b *billingcycle.BillingCycle) bool {
		return a.PeriodEnd.After(b.PeriodEnd)
	})
}
