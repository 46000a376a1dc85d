package contractline

import (
	"github.com/shopspring/decimal"
)

// TierCharge is the portion of a quantity billed at one tier's rate
type TierCharge struct {
	FromUnits uint64          `json:"from_units"`
	UpToUnits *uint64         `json:"up_to_units,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitRate  decimal.Decimal `json:"unit_rate"`
}

// Amount is the charge's quantity priced at its tier rate
func (c TierCharge) Amount() decimal.Decimal {
	return c.Quantity.Mul(c.UnitRate)
}

// GraduatedCharges splits a quantity across the tier table so each
// portion bills at its own tier's rate: 150 units over [0,100) and
// [100,inf) yields 100 at the first rate and 50 at the second. The
// table is validated first; a malformed table is never priced.
func (u *UsageConfig) GraduatedCharges(quantity decimal.Decimal) ([]TierCharge, error) {
	if err := u.ValidateTiers(); err != nil {
		return nil, err
	}

	charges := make([]TierCharge, 0, len(u.Tiers))
	for _, tier := range u.SortedTiers() {
		from := decimal.NewFromUint64(tier.FromUnits)
		portion := quantity.Sub(from)
		if portion.LessThanOrEqual(decimal.Zero) {
			break
		}
		if tier.UpToUnits != nil {
			width := decimal.NewFromUint64(*tier.UpToUnits - tier.FromUnits)
			if portion.GreaterThan(width) {
				portion = width
			}
		}
		charges = append(charges, TierCharge{
			FromUnits: tier.FromUnits,
			UpToUnits: tier.UpToUnits,
			Quantity:  portion,
			UnitRate:  tier.UnitRate,
		})
	}

	return charges, nil
}
