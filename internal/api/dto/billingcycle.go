package dto

import (
	"time"

	"github.com/billforge/billforge/internal/domain/billingcycle"
	"github.com/billforge/billforge/internal/types"
	"github.com/billforge/billforge/internal/validator"
)

// CreateBillingCycleRequest asks for the next billing cycle of a
// client. CycleType is required for the client's first cycle and
// defaults to the latest cycle's type afterwards. RequestedStart
// overrides the natural start (the latest cycle's period end).
type CreateBillingCycleRequest struct {
	ClientID       string                 `json:"client_id" validate:"required"`
	CycleType      types.BillingFrequency `json:"cycle_type,omitempty"`
	RequestedStart *time.Time             `json:"requested_start,omitempty"`
}

func (r *CreateBillingCycleRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.CycleType != "" {
		return r.CycleType.Validate()
	}
	return nil
}

// CycleConflict describes why a cycle could not be created.
// SuggestedDate is the earliest start whose full period overlaps none
// of the client's existing cycles, so retrying with it succeeds.
type CycleConflict struct {
	SuggestedDate       time.Time `json:"suggested_date"`
	OverlappingCycleIDs []string  `json:"overlapping_cycle_ids"`
}

// CreateBillingCycleResponse carries either the created cycle or the
// conflict that blocked it. IsEarly flags a cycle requested before the
// current period has ended; early creation is allowed, the flag lets
// callers surface it to the operator.
type CreateBillingCycleResponse struct {
	Cycle    *billingcycle.BillingCycle `json:"cycle,omitempty"`
	Conflict *CycleConflict             `json:"conflict,omitempty"`
	IsEarly  bool                       `json:"is_early"`
}

// CycleStatus is the side effect free preview of the next cycle. It
// agrees with what CreateBillingCycleRequest without a requested start
// would produce.
type CycleStatus struct {
	CanCreate   bool      `json:"can_create"`
	IsEarly     bool      `json:"is_early"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}
