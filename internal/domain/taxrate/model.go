package taxrate

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// TaxRate is a percentage tax rate effective for a region over a time
// window. EffectiveTo is nil for open ended rates.
type TaxRate struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name,omitempty"`
	Region string `db:"region" json:"region"`

	Percentage decimal.Decimal `db:"percentage" json:"percentage"`

	EffectiveFrom time.Time  `db:"effective_from" json:"effective_from"`
	EffectiveTo   *time.Time `db:"effective_to" json:"effective_to,omitempty"`

	types.BaseModel
}

// ActiveAt reports whether the rate is effective as of the given time
func (r *TaxRate) ActiveAt(asOf time.Time) bool {
	if r.Status != types.StatusPublished {
		return false
	}
	if asOf.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !asOf.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

func (r *TaxRate) Validate() error {
	if r.Region == "" {
		return ierr.NewError("tax rate region is required").
			Mark(ierr.ErrValidation)
	}
	if r.Percentage.IsNegative() {
		return ierr.NewError("tax rate percentage must be non negative").
			WithHintf("Got %s", r.Percentage.String()).
			Mark(ierr.ErrValidation)
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(r.EffectiveFrom) {
		return ierr.NewError("effective to must be after effective from").
			Mark(ierr.ErrValidation)
	}
	return nil
}
