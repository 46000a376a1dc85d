package invoice

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// Invoice represents the invoice domain model
type Invoice struct {
	ID            string              `db:"id" json:"id"`
	ClientID      string              `db:"client_id" json:"client_id"`
	InvoiceNumber string              `db:"invoice_number" json:"invoice_number"`
	InvoiceStatus types.InvoiceStatus `db:"invoice_status" json:"invoice_status"`
	Currency      string              `db:"currency" json:"currency"`

	// TaxRegion is the client's tax region code, resolved against the
	// injected tax rate provider
	TaxRegion string `db:"tax_region" json:"tax_region"`

	TotalAmount   decimal.Decimal `db:"total_amount" json:"total_amount"`
	CreditApplied decimal.Decimal `db:"credit_applied" json:"credit_applied"`

	PeriodStart *time.Time `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd   *time.Time `db:"period_end" json:"period_end,omitempty"`

	FinalizedAt *time.Time `db:"finalized_at" json:"finalized_at,omitempty"`

	// DeliveredAt is set when the invoice artifact has been sent to the
	// client (PDF exported or emailed). Once set, unfinalizing is refused.
	DeliveredAt *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`

	Description string `db:"description" json:"description,omitempty"`

	Items []*InvoiceItem `json:"items,omitempty"`

	Version int `db:"version" json:"version"`

	types.BaseModel
}

// IsDraft reports whether the invoice is still editable
func (i *Invoice) IsDraft() bool {
	return i.InvoiceStatus == types.InvoiceStatusDraft
}

// IsFinalized reports whether the invoice has been issued
func (i *Invoice) IsFinalized() bool {
	return i.InvoiceStatus == types.InvoiceStatusFinalized
}

// IsDelivered reports whether the invoice artifact has reached the client
func (i *Invoice) IsDelivered() bool {
	return i.DeliveredAt != nil
}

// HasPendingRemovals reports whether any item is tombstoned but not yet
// committed. Finalizing with pending removals is refused.
func (i *Invoice) HasPendingRemovals() bool {
	for _, item := range i.Items {
		if item.IsRemoved {
			return true
		}
	}
	return false
}

// ActiveItems returns the items that are not tombstoned
func (i *Invoice) ActiveItems() []*InvoiceItem {
	items := make([]*InvoiceItem, 0, len(i.Items))
	for _, item := range i.Items {
		if !item.IsRemoved {
			items = append(items, item)
		}
	}
	return items
}

func (i *Invoice) Validate() error {
	if i.ClientID == "" {
		return ierr.NewError("client id is required").
			Mark(ierr.ErrValidation)
	}
	if i.Currency == "" {
		return ierr.NewError("currency is required").
			Mark(ierr.ErrValidation)
	}
	if err := i.InvoiceStatus.Validate(); err != nil {
		return err
	}
	if i.CreditApplied.IsNegative() {
		return ierr.NewError("credit applied must be non negative").
			Mark(ierr.ErrValidation)
	}
	if i.PeriodStart != nil && i.PeriodEnd != nil {
		if i.PeriodEnd.Before(*i.PeriodStart) {
			return ierr.NewError("period end must be after period start").
				Mark(ierr.ErrValidation)
		}
	}
	if i.IsFinalized() && i.FinalizedAt == nil {
		return ierr.NewError("finalized invoice must carry a finalized timestamp").
			Mark(ierr.ErrValidation)
	}

	for _, item := range i.Items {
		if item.Currency != i.Currency {
			return ierr.NewError("line item currency must match invoice currency").
				WithHintf("Item %s is in %s, invoice is in %s", item.ID, item.Currency, i.Currency).
				Mark(ierr.ErrValidation)
		}
		if err := item.Validate(); err != nil {
			return err
		}
	}

	return nil
}
