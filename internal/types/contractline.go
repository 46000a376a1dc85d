package types

import (
	"slices"

	ierr "github.com/billforge/billforge/internal/errors"
)

// PlanType is the billing type of a contract line ex FIXED, HOURLY, USAGE, BUCKET
type PlanType string

const (
	PlanTypeFixed  PlanType = "FIXED"
	PlanTypeHourly PlanType = "HOURLY"
	PlanTypeUsage  PlanType = "USAGE"
	PlanTypeBucket PlanType = "BUCKET"
)

func (t PlanType) String() string {
	return string(t)
}

func (t PlanType) Validate() error {
	allowedValues := []string{
		PlanTypeFixed.String(),
		PlanTypeHourly.String(),
		PlanTypeUsage.String(),
		PlanTypeBucket.String(),
	}
	if !slices.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid plan type").
			WithHint("Plan type must be one of FIXED, HOURLY, USAGE or BUCKET").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// BillingCycleAlignment controls how a fixed fee is billed relative to
// the billing cycle it falls into.
type BillingCycleAlignment string

const (
	BillingCycleAlignmentStart    BillingCycleAlignment = "START"
	BillingCycleAlignmentEnd      BillingCycleAlignment = "END"
	BillingCycleAlignmentProrated BillingCycleAlignment = "PRORATED"
)

func (a BillingCycleAlignment) String() string {
	return string(a)
}

func (a BillingCycleAlignment) Validate() error {
	allowedValues := []string{
		BillingCycleAlignmentStart.String(),
		BillingCycleAlignmentEnd.String(),
		BillingCycleAlignmentProrated.String(),
	}
	if !slices.Contains(allowedValues, string(a)) {
		return ierr.NewError("invalid billing cycle alignment").
			WithHint("Billing cycle alignment must be one of START, END or PRORATED").
			Mark(ierr.ErrValidation)
	}
	return nil
}
