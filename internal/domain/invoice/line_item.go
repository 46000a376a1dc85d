package invoice

import (
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// InvoiceItem is one line on an invoice: an automated charge generated
// from usage, time or a fixed fee, or a manual entry. Discount items
// reduce the total; removal from a draft invoice is a tombstone
// (IsRemoved) until committed, never physical deletion.
type InvoiceItem struct {
	ID        string `db:"id" json:"id"`
	InvoiceID string `db:"invoice_id" json:"invoice_id"`

	// ServiceID is optional for manual items
	ServiceID *string `db:"service_id" json:"service_id,omitempty"`

	Description string `db:"description" json:"description"`

	Quantity decimal.Decimal `db:"quantity" json:"quantity"`
	UnitRate decimal.Decimal `db:"unit_rate" json:"unit_rate"`
	Currency string          `db:"currency" json:"currency"`

	Source types.InvoiceItemSource `db:"source" json:"source"`

	IsDiscount         bool               `db:"is_discount" json:"is_discount"`
	DiscountType       types.DiscountType `db:"discount_type" json:"discount_type,omitempty"`
	DiscountPercentage *decimal.Decimal   `db:"discount_percentage" json:"discount_percentage,omitempty"`

	// AppliesToItemID scopes a percentage discount to a single item.
	// When nil the discount applies to the invoice's full non discount subtotal.
	AppliesToItemID *string `db:"applies_to_item_id" json:"applies_to_item_id,omitempty"`

	IsTaxable bool `db:"is_taxable" json:"is_taxable"`

	// IsRemoved tombstones the item on an existing invoice until the
	// removal is committed
	IsRemoved bool `db:"is_removed" json:"is_removed"`

	// Computed amounts, recomputed from the fields above on every pass
	TotalPrice decimal.Decimal `db:"total_price" json:"total_price"`
	TaxAmount  decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	NetAmount  decimal.Decimal `db:"net_amount" json:"net_amount"`

	types.BaseModel
}

func (i *InvoiceItem) Validate() error {
	if err := i.Source.Validate(); err != nil {
		return err
	}
	if i.Currency == "" {
		return ierr.NewError("line item currency is required").
			Mark(ierr.ErrValidation)
	}

	if i.IsDiscount {
		if err := i.DiscountType.Validate(); err != nil {
			return err
		}
		if i.DiscountType == types.DiscountTypePercentage {
			if i.DiscountPercentage == nil {
				return ierr.NewError("percentage discount requires a discount percentage").
					WithHint("Set discount_percentage on percentage discount items").
					Mark(ierr.ErrValidation)
			}
			if i.DiscountPercentage.IsNegative() || i.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)) {
				return ierr.NewError("discount percentage must be between 0 and 100").
					WithHintf("Got %s", i.DiscountPercentage.String()).
					Mark(ierr.ErrValidation)
			}
		}
		return nil
	}

	if i.Quantity.IsNegative() {
		return ierr.NewError("quantity must be non negative").
			Mark(ierr.ErrValidation)
	}

	return nil
}

// Subtotal is quantity times unit rate with no rounding applied
func (i *InvoiceItem) Subtotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitRate)
}
