package service

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/cache"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/taxrate"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// taxRateCacheExpiry bounds how long a resolved tax rate is reused
// across computation passes
const taxRateCacheExpiry = 5 * time.Minute

var hundred = decimal.NewFromInt(100)

// InvoiceService computes line amounts and manages the invoice
// lifecycle. All money-bearing lookups fail loudly; a missing tax rate
// or rate table never silently becomes zero.
type InvoiceService interface {
	// CreateInvoice creates a draft invoice
	CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*invoice.Invoice, error)

	// GetInvoice retrieves an invoice with its line items
	GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error)

	// AddItem appends a line item to a draft invoice and recomputes it
	AddItem(ctx context.Context, invoiceID string, req *dto.AddInvoiceItemRequest, asOf time.Time) (*invoice.Invoice, error)

	// RemoveItem tombstones a line item on a draft invoice. The item
	// stays visible as removed until CommitItemRemovals.
	RemoveItem(ctx context.Context, invoiceID, itemID string, asOf time.Time) (*invoice.Invoice, error)

	// CommitItemRemovals permanently applies the pending tombstones
	CommitItemRemovals(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error)

	// ComputeInvoiceItems generates the automated charges for a billed
	// period from the client's plans and recorded usage, then
	// recomputes the invoice. Rerunning it replaces the previously
	// generated automated charges instead of appending to them.
	ComputeInvoiceItems(ctx context.Context, invoiceID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error)

	// RecomputeInvoice recomputes every line amount and the invoice
	// total from current item state
	RecomputeInvoice(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error)

	// FinalizeInvoice recomputes the invoice and transitions it to
	// finalized. Pending removals and unresolvable tax both block the
	// transition; there is no partial finalize.
	FinalizeInvoice(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error)

	// UnfinalizeInvoice reopens a finalized invoice for editing.
	// Refused once the invoice has been delivered.
	UnfinalizeInvoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error)

	// MarkDelivered records that the invoice artifact reached the
	// client, finalizing first if the invoice is still draft
	MarkDelivered(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error)
}

type invoiceService struct {
	ServiceParams
}

// NewInvoiceService creates a new invoice service
func NewInvoiceService(params ServiceParams) InvoiceService {
	return &invoiceService{ServiceParams: params}
}

func (s *invoiceService) CreateInvoice(ctx context.Context, req *dto.CreateInvoiceRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	inv := req.ToInvoice(ctx)
	if err := inv.Validate(); err != nil {
		return nil, err
	}
	if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.Logger.Infow("created draft invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"client_id", inv.ClientID)

	return inv, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	return s.InvoiceRepo.Get(ctx, id)
}

func (s *invoiceService) AddItem(ctx context.Context, invoiceID string, req *dto.AddInvoiceItemRequest, asOf time.Time) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		item := req.ToInvoiceItem(ctx, inv)
		if err := item.Validate(); err != nil {
			return err
		}
		inv.Items = append(inv.Items, item)

		if err := s.computeItems(ctx, inv, asOf); err != nil {
			return err
		}
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) RemoveItem(ctx context.Context, invoiceID, itemID string, asOf time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		found := false
		for _, item := range inv.Items {
			if item.ID == itemID {
				item.IsRemoved = true
				found = true
				break
			}
		}
		if !found {
			return ierr.NewError("line item not found on invoice").
				WithHintf("Invoice %s has no item %s", invoiceID, itemID).
				Mark(ierr.ErrNotFound)
		}

		if err := s.computeItems(ctx, inv, asOf); err != nil {
			return err
		}
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) CommitItemRemovals(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		for _, item := range inv.Items {
			if item.IsRemoved {
				item.Status = types.StatusDeleted
			}
		}

		if err := s.computeItems(ctx, inv, asOf); err != nil {
			return err
		}
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		inv.Items = inv.ActiveItems()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) RecomputeInvoice(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.computeItems(ctx, inv, asOf); err != nil {
			return err
		}
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) FinalizeInvoice(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := s.finalize(ctx, inv, asOf); err != nil {
			return err
		}
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) UnfinalizeInvoice(ctx context.Context, invoiceID string) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.IsDelivered() {
			return ierr.NewError("delivered invoice cannot be unfinalized").
				WithHintf("Invoice %s was delivered at %s", inv.ID, inv.DeliveredAt.Format(time.RFC3339)).
				Mark(ierr.ErrInvoiceNotEditable)
		}
		if !inv.IsFinalized() {
			return ierr.NewError("only finalized invoices can be unfinalized").
				WithHintf("Invoice %s is %s", inv.ID, inv.InvoiceStatus).
				Mark(ierr.ErrInvalidOperation)
		}

		inv.InvoiceStatus = types.InvoiceStatusDraft
		inv.FinalizedAt = nil
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) MarkDelivered(ctx context.Context, invoiceID string, asOf time.Time) (*invoice.Invoice, error) {
	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.InvoiceRepo.Get(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.InvoiceStatus == types.InvoiceStatusVoided {
			return ierr.NewError("voided invoice cannot be delivered").
				Mark(ierr.ErrInvalidOperation)
		}

		// Delivery implies finalization. A draft invoice being exported
		// or emailed finalizes as a side effect of delivery.
		if inv.IsDraft() {
			if err := s.finalize(ctx, inv, asOf); err != nil {
				return err
			}
		}

		deliveredAt := asOf.UTC()
		inv.DeliveredAt = &deliveredAt
		return s.InvoiceRepo.Update(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// finalize validates and recomputes the invoice, then applies the one
// way draft to finalized transition in memory.
func (s *invoiceService) finalize(ctx context.Context, inv *invoice.Invoice, asOf time.Time) error {
	if !inv.IsDraft() {
		return ierr.NewError("invoice is not in draft status").
			WithHintf("Invoice %s is %s", inv.ID, inv.InvoiceStatus).
			Mark(ierr.ErrInvalidOperation)
	}
	if inv.HasPendingRemovals() {
		return ierr.NewError("invoice has uncommitted item removals").
			WithHint("Commit or revert pending removals before finalizing").
			Mark(ierr.ErrInvalidOperation)
	}

	if err := s.computeItems(ctx, inv, asOf); err != nil {
		return err
	}

	finalizedAt := asOf.UTC()
	inv.InvoiceStatus = types.InvoiceStatusFinalized
	inv.FinalizedAt = &finalizedAt

	s.Logger.Infow("finalized invoice",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"total_amount", inv.TotalAmount)

	return nil
}

// computeItems recomputes every active line amount and the invoice
// total. Percentage discounts always compute against original amounts,
// so several percentage discounts on the same base do not compound off
// each other and their order does not matter. All amounts round half
// up to the invoice currency's precision.
func (s *invoiceService) computeItems(ctx context.Context, inv *invoice.Invoice, asOf time.Time) error {
	precision := types.GetCurrencyPrecision(inv.Currency)
	active := inv.ActiveItems()

	byID := make(map[string]*invoice.InvoiceItem, len(active))
	baseSubtotal := decimal.Zero
	for _, item := range active {
		byID[item.ID] = item
		if !item.IsDiscount {
			baseSubtotal = baseSubtotal.Add(item.Subtotal())
		}
	}

	for _, item := range active {
		if err := item.Validate(); err != nil {
			return err
		}

		var total decimal.Decimal
		switch {
		case !item.IsDiscount:
			total = item.Subtotal()
		case item.DiscountType == types.DiscountTypeFixed:
			// Fixed discounts store a negative unit rate
			total = item.Subtotal()
		default:
			base := baseSubtotal
			if item.AppliesToItemID != nil {
				target, ok := byID[*item.AppliesToItemID]
				if !ok || target.IsDiscount {
					return ierr.NewError("discount target is not a chargeable item on this invoice").
						WithHintf("Item %s applies to %s", item.ID, *item.AppliesToItemID).
						Mark(ierr.ErrValidation)
				}
				base = target.Subtotal()
			}
			total = base.Mul(*item.DiscountPercentage).Div(hundred).Neg()
		}

		item.TotalPrice = total.Round(precision)

		if item.IsTaxable {
			rate, err := s.activeTaxRate(ctx, inv.TaxRegion, asOf)
			if err != nil {
				return err
			}
			item.TaxAmount = item.TotalPrice.Mul(rate.Percentage).Div(hundred).Round(precision)
		} else {
			item.TaxAmount = decimal.Zero
		}
		item.NetAmount = item.TotalPrice.Add(item.TaxAmount)
	}

	total := decimal.Zero
	for _, item := range active {
		total = total.Add(item.NetAmount)
	}
	inv.TotalAmount = total.Sub(inv.CreditApplied)

	return nil
}

// activeTaxRate resolves the rate for a region, memoizing lookups so
// one computation pass hits the provider at most once per region. Rate
// writes drop the memo, so a recompute never prices against a stale
// rate.
func (s *invoiceService) activeTaxRate(ctx context.Context, region string, asOf time.Time) (*taxrate.TaxRate, error) {
	if region == "" {
		return nil, s.noActiveTaxRate(region, asOf)
	}

	cacheKey := cache.GenerateKey(cache.PrefixTaxRate, types.GetTenantID(ctx), region, asOf.Unix())
	if cached, found := s.Cache.Get(ctx, cacheKey); found {
		if rate, ok := cached.(*taxrate.TaxRate); ok {
			return rate, nil
		}
	}

	rate, err := s.TaxRateProvider.GetActiveRate(ctx, region, asOf)
	if err != nil {
		return nil, err
	}
	if rate == nil {
		return nil, s.noActiveTaxRate(region, asOf)
	}

	s.Cache.Set(ctx, cacheKey, rate, taxRateCacheExpiry)
	return rate, nil
}

func (s *invoiceService) noActiveTaxRate(region string, asOf time.Time) error {
	return ierr.NewError("no active tax rate for region").
		WithHintf("No tax rate covers region %q as of %s", region, asOf.Format(time.RFC3339)).
		Mark(ierr.ErrNoActiveTaxRate)
}

// editableInvoice loads the invoice and ensures it still accepts edits
func (s *invoiceService) editableInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	inv, err := s.InvoiceRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inv.IsDraft() {
		return nil, ierr.NewError("invoice is not editable").
			WithHintf("Invoice %s is %s; only draft invoices accept changes", inv.ID, inv.InvoiceStatus).
			Mark(ierr.ErrInvoiceNotEditable)
	}
	return inv, nil
}
