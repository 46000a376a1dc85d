package dto

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/invoice"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/billforge/billforge/internal/validator"
	"github.com/shopspring/decimal"
)

// CreateInvoiceRequest creates a draft invoice for a client
type CreateInvoiceRequest struct {
	ClientID      string          `json:"client_id" validate:"required"`
	Currency      string          `json:"currency" validate:"required,len=3"`
	TaxRegion     string          `json:"tax_region,omitempty"`
	Description   string          `json:"description,omitempty"`
	CreditApplied decimal.Decimal `json:"credit_applied,omitempty"`
	PeriodStart   *time.Time      `json:"period_start,omitempty"`
	PeriodEnd     *time.Time      `json:"period_end,omitempty"`
}

func (r *CreateInvoiceRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.CreditApplied.IsNegative() {
		return ierr.NewError("credit applied must be non negative").
			WithHintf("Got %s", r.CreditApplied.String()).
			Mark(ierr.ErrValidation)
	}
	if r.PeriodStart != nil && r.PeriodEnd != nil && !r.PeriodEnd.After(*r.PeriodStart) {
		return ierr.NewError("period end must be after period start").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToInvoice converts the request to a domain invoice in draft status
func (r *CreateInvoiceRequest) ToInvoice(ctx context.Context) *invoice.Invoice {
	return &invoice.Invoice{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE),
		ClientID:      r.ClientID,
		InvoiceNumber: types.GenerateShortIDWithPrefix(types.SHORT_ID_PREFIX_INVOICE),
		InvoiceStatus: types.InvoiceStatusDraft,
		Currency:      r.Currency,
		TaxRegion:     r.TaxRegion,
		TotalAmount:   decimal.Zero,
		CreditApplied: r.CreditApplied,
		PeriodStart:   r.PeriodStart,
		PeriodEnd:     r.PeriodEnd,
		Description:   r.Description,
		Version:       1,
		BaseModel:     types.GetDefaultBaseModel(ctx),
	}
}

// AddInvoiceItemRequest adds one line item to a draft invoice. Manual
// charges, automated charges and discounts all flow through here.
type AddInvoiceItemRequest struct {
	ServiceID   *string         `json:"service_id,omitempty"`
	Description string          `json:"description" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unit_rate"`

	Source types.InvoiceItemSource `json:"source,omitempty"`

	IsDiscount         bool               `json:"is_discount,omitempty"`
	DiscountType       types.DiscountType `json:"discount_type,omitempty"`
	DiscountPercentage *decimal.Decimal   `json:"discount_percentage,omitempty"`
	AppliesToItemID    *string            `json:"applies_to_item_id,omitempty"`

	IsTaxable bool `json:"is_taxable,omitempty"`
}

func (r *AddInvoiceItemRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Source != "" {
		if err := r.Source.Validate(); err != nil {
			return err
		}
	}
	if r.IsDiscount {
		if err := r.DiscountType.Validate(); err != nil {
			return err
		}
		if r.DiscountType == types.DiscountTypePercentage && r.DiscountPercentage == nil {
			return ierr.NewError("percentage discount requires a discount percentage").
				WithHint("Set discount_percentage on percentage discount items").
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// ToInvoiceItem converts the request to a domain line item attached to
// the given invoice. Source defaults to manual.
func (r *AddInvoiceItemRequest) ToInvoiceItem(ctx context.Context, inv *invoice.Invoice) *invoice.InvoiceItem {
	source := r.Source
	if source == "" {
		source = types.InvoiceItemSourceManual
	}
	return &invoice.InvoiceItem{
		ID:                 types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		InvoiceID:          inv.ID,
		ServiceID:          r.ServiceID,
		Description:        r.Description,
		Quantity:           r.Quantity,
		UnitRate:           r.UnitRate,
		Currency:           inv.Currency,
		Source:             source,
		IsDiscount:         r.IsDiscount,
		DiscountType:       r.DiscountType,
		DiscountPercentage: r.DiscountPercentage,
		AppliesToItemID:    r.AppliesToItemID,
		IsTaxable:          r.IsTaxable,
		BaseModel:          types.GetDefaultBaseModel(ctx),
	}
}
