package types

import (
	"slices"

	ierr "github.com/billforge/billforge/internal/errors"
)

// InvoiceStatus represents the current state of an invoice in its lifecycle
type InvoiceStatus string

const (
	// InvoiceStatusDraft indicates invoice is in draft state and can be modified
	InvoiceStatusDraft InvoiceStatus = "DRAFT"
	// InvoiceStatusFinalized indicates invoice is finalized, immutable, and ready for delivery
	InvoiceStatusFinalized InvoiceStatus = "FINALIZED"
	// InvoiceStatusVoided indicates invoice has been cancelled
	InvoiceStatusVoided InvoiceStatus = "VOIDED"
)

func (s InvoiceStatus) String() string {
	return string(s)
}

func (s InvoiceStatus) Validate() error {
	allowedValues := []string{
		InvoiceStatusDraft.String(),
		InvoiceStatusFinalized.String(),
		InvoiceStatusVoided.String(),
	}
	if !slices.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid invoice status").
			WithHint("Invoice status must be one of DRAFT, FINALIZED or VOIDED").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// InvoiceItemSource distinguishes system generated line items from
// operator entered ones.
type InvoiceItemSource string

const (
	InvoiceItemSourceAutomated InvoiceItemSource = "AUTOMATED"
	InvoiceItemSourceManual    InvoiceItemSource = "MANUAL"
)

func (s InvoiceItemSource) String() string {
	return string(s)
}

func (s InvoiceItemSource) Validate() error {
	allowedValues := []string{
		InvoiceItemSourceAutomated.String(),
		InvoiceItemSourceManual.String(),
	}
	if !slices.Contains(allowedValues, string(s)) {
		return ierr.NewError("invalid invoice item source").
			WithHint("Invoice item source must be either AUTOMATED or MANUAL").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// DiscountType is the kind of discount a discount line item applies
type DiscountType string

const (
	DiscountTypeFixed      DiscountType = "FIXED"
	DiscountTypePercentage DiscountType = "PERCENTAGE"
)

func (t DiscountType) String() string {
	return string(t)
}

func (t DiscountType) Validate() error {
	allowedValues := []string{
		DiscountTypeFixed.String(),
		DiscountTypePercentage.String(),
	}
	if !slices.Contains(allowedValues, string(t)) {
		return ierr.NewError("invalid discount type").
			WithHint("Discount type must be either FIXED or PERCENTAGE").
			Mark(ierr.ErrValidation)
	}
	return nil
}
