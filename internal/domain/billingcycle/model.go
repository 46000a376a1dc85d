package billingcycle

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
)

// BillingCycle is one recurring billing period for a client. The
// interval is half open: PeriodStart inclusive, PeriodEnd exclusive,
// so exact back-to-back cycles do not conflict.
type BillingCycle struct {
	ID        string                 `db:"id" json:"id"`
	ClientID  string                 `db:"client_id" json:"client_id"`
	CycleType types.BillingFrequency `db:"cycle_type" json:"cycle_type"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	Version int `db:"version" json:"version"`

	types.BaseModel
}

func (c *BillingCycle) Validate() error {
	if c.ClientID == "" {
		return ierr.NewError("client id is required").
			Mark(ierr.ErrValidation)
	}
	if err := c.CycleType.Validate(); err != nil {
		return err
	}
	if !c.PeriodEnd.After(c.PeriodStart) {
		return ierr.NewError("period end must be after period start").
			WithHintf("Got [%s, %s)", c.PeriodStart.Format(time.RFC3339), c.PeriodEnd.Format(time.RFC3339)).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// Overlaps reports whether the half open intervals of the two cycles
// intersect. Touching boundaries (one period ending exactly where the
// other starts) do not overlap.
func (c *BillingCycle) Overlaps(start, end time.Time) bool {
	return c.PeriodStart.Before(end) && start.Before(c.PeriodEnd)
}

// Covers reports whether t falls inside the cycle's half open interval
func (c *BillingCycle) Covers(t time.Time) bool {
	return !t.Before(c.PeriodStart) && t.Before(c.PeriodEnd)
}
