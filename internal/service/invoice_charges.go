package service

import (
	"context"
	"fmt"
	"time"

	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	"github.com/billforge/billforge/internal/domain/invoice"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// ComputeInvoiceItems generates the automated charges for the period
// from the client's plans and recorded usage, replaces any previously
// generated charges on the draft invoice with them and recomputes it.
// Tiered usage produces one line per tier consumed; bucket plans bill
// only their priced overage.
func (s *invoiceService) ComputeInvoiceItems(ctx context.Context, invoiceID string, periodStart, periodEnd time.Time) (*invoice.Invoice, error) {
	if !periodEnd.After(periodStart) {
		return nil, ierr.NewError("period end must be after period start").
			Mark(ierr.ErrValidation)
	}

	var inv *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		var err error
		inv, err = s.editableInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		// Rerunning generation replaces the previous run's automated
		// charges; manual items and their pending removals are untouched.
		for _, item := range inv.Items {
			if item.Source == types.InvoiceItemSourceAutomated && !item.IsRemoved {
				item.IsRemoved = true
				item.Status = types.StatusDeleted
			}
		}

		items, err := s.generateCharges(ctx, inv, periodStart, periodEnd)
		if err != nil {
			return err
		}
		inv.Items = append(inv.Items, items...)

		if inv.PeriodStart == nil {
			inv.PeriodStart = &periodStart
		}
		if inv.PeriodEnd == nil {
			inv.PeriodEnd = &periodEnd
		}

		// Tax is resolved as of the end of the billed period
		if err := s.computeItems(ctx, inv, periodEnd); err != nil {
			return err
		}
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return err
		}

		kept := make([]*invoice.InvoiceItem, 0, len(inv.Items))
		for _, item := range inv.Items {
			if item.Status != types.StatusDeleted {
				kept = append(kept, item)
			}
		}
		inv.Items = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *invoiceService) generateCharges(ctx context.Context, inv *invoice.Invoice, periodStart, periodEnd time.Time) ([]*invoice.InvoiceItem, error) {
	assignments, err := s.AssignmentRepo.ListByClient(ctx, inv.ClientID)
	if err != nil {
		return nil, err
	}
	assigned := lo.Filter(assignments, func(a *contractline.PlanAssignment, _ int) bool {
		if a.Status != types.StatusPublished {
			return false
		}
		if !a.StartDate.Before(periodEnd) {
			return false
		}
		return a.EndDate == nil || a.EndDate.After(periodStart)
	})
	lineIDs := lo.Uniq(lo.Map(assigned, func(a *contractline.PlanAssignment, _ int) string {
		return a.ContractLineID
	}))

	var items []*invoice.InvoiceItem
	for _, lineID := range lineIDs {
		line, err := s.ContractLineRepo.Get(ctx, lineID)
		if err != nil {
			return nil, err
		}
		configs, err := s.ServiceConfigRepo.ListByContractLine(ctx, lineID)
		if err != nil {
			return nil, err
		}

		for _, cfg := range configs {
			charges, err := s.chargesForConfiguration(ctx, inv, line, cfg, periodStart, periodEnd)
			if err != nil {
				return nil, err
			}
			items = append(items, charges...)
		}
	}

	return items, nil
}

func (s *invoiceService) chargesForConfiguration(ctx context.Context, inv *invoice.Invoice, line *contractline.ContractLine, cfg *contractline.ServiceConfiguration, periodStart, periodEnd time.Time) ([]*invoice.InvoiceItem, error) {
	switch cfg.ConfigurationType {
	case types.PlanTypeUsage:
		return s.usageCharges(ctx, inv, line, cfg, periodStart, periodEnd)
	case types.PlanTypeHourly:
		return s.hourlyCharges(ctx, inv, line, cfg, periodStart, periodEnd)
	case types.PlanTypeBucket:
		return s.bucketOverageCharge(ctx, inv, line, cfg, periodStart)
	case types.PlanTypeFixed:
		return s.fixedCharge(ctx, inv, line, cfg), nil
	default:
		return nil, ierr.NewError("unknown configuration type").
			WithHintf("Configuration %s has type %s", cfg.ID, cfg.ConfigurationType).
			Mark(ierr.ErrValidation)
	}
}

func (s *invoiceService) usageCharges(ctx context.Context, inv *invoice.Invoice, line *contractline.ContractLine, cfg *contractline.ServiceConfiguration, periodStart, periodEnd time.Time) ([]*invoice.InvoiceItem, error) {
	total, err := s.recordedQuantity(ctx, inv.ClientID, cfg, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}
	if total.IsZero() {
		return nil, nil
	}

	charges, err := cfg.UsageConfig().GraduatedCharges(total)
	if err != nil {
		return nil, err
	}

	items := make([]*invoice.InvoiceItem, 0, len(charges))
	for _, charge := range charges {
		description := fmt.Sprintf("%s usage from %d units", line.Name, charge.FromUnits)
		items = append(items, s.automatedItem(ctx, inv, cfg.ServiceID, description, charge.Quantity, charge.UnitRate))
	}
	return items, nil
}

func (s *invoiceService) hourlyCharges(ctx context.Context, inv *invoice.Invoice, line *contractline.ContractLine, cfg *contractline.ServiceConfiguration, periodStart, periodEnd time.Time) ([]*invoice.InvoiceItem, error) {
	records, err := s.UsageRepo.ListByClientAndService(ctx, inv.ClientID, cfg.ServiceID, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	hcfg := cfg.HourlyConfig()
	var billableMinutes int64
	for _, record := range records {
		if record.ContractLineID != nil && *record.ContractLineID != cfg.ContractLineID {
			continue
		}
		// Usage quantity on hourly services is recorded in minutes;
		// the minimum and round up rules apply per entry.
		billableMinutes += hcfg.BillableMinutes(record.Quantity.IntPart())
	}
	if billableMinutes == 0 {
		return nil, nil
	}

	rate := hcfg.HourlyRate
	if cfg.CustomRate != nil {
		rate = *cfg.CustomRate
	}
	hours := decimal.NewFromInt(billableMinutes).Div(minutesPerHour)
	description := fmt.Sprintf("%s, %d billable minutes", line.Name, billableMinutes)

	return []*invoice.InvoiceItem{s.automatedItem(ctx, inv, cfg.ServiceID, description, hours, rate)}, nil
}

func (s *invoiceService) bucketOverageCharge(ctx context.Context, inv *invoice.Invoice, line *contractline.ContractLine, cfg *contractline.ServiceConfiguration, periodStart time.Time) ([]*invoice.InvoiceItem, error) {
	key := bucket.LedgerKey{
		ClientID:       inv.ClientID,
		ServiceID:      cfg.ServiceID,
		ContractLineID: cfg.ContractLineID,
	}
	ledger, err := s.BucketLedgerRepo.GetForPeriod(ctx, key, periodStart)
	if err != nil {
		if ierr.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	overage := ledger.Overage()
	if overage == 0 {
		return nil, nil
	}

	bcfg := cfg.BucketConfig()
	if bcfg.OverageRate == nil {
		return nil, ierr.NewError("bucket overage has no configured rate").
			WithHintf("Contract line %s consumed %d units beyond its allotment", cfg.ContractLineID, overage).
			Mark(ierr.ErrOverageUnderpriced)
	}

	description := fmt.Sprintf("%s overage, %d units beyond allotment", line.Name, overage)
	return []*invoice.InvoiceItem{s.automatedItem(ctx, inv, cfg.ServiceID, description, decimal.NewFromInt(overage), *bcfg.OverageRate)}, nil
}

// fixedCharge bills the recurring fee when the configuration carries a
// custom rate. Plans priced off the external service catalog have no
// rate here and contribute no automated line.
func (s *invoiceService) fixedCharge(ctx context.Context, inv *invoice.Invoice, line *contractline.ContractLine, cfg *contractline.ServiceConfiguration) []*invoice.InvoiceItem {
	if cfg.CustomRate == nil {
		s.Logger.Debugw("fixed configuration has no custom rate, skipping automated charge",
			"contract_line_id", cfg.ContractLineID,
			"service_id", cfg.ServiceID)
		return nil
	}
	description := fmt.Sprintf("%s recurring fee", line.Name)
	return []*invoice.InvoiceItem{s.automatedItem(ctx, inv, cfg.ServiceID, description, cfg.Quantity, *cfg.CustomRate)}
}

// recordedQuantity sums the usage recorded against the configuration's
// contract line within [periodStart, periodEnd)
func (s *invoiceService) recordedQuantity(ctx context.Context, clientID string, cfg *contractline.ServiceConfiguration, periodStart, periodEnd time.Time) (decimal.Decimal, error) {
	records, err := s.UsageRepo.ListByClientAndService(ctx, clientID, cfg.ServiceID, periodStart, periodEnd)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, record := range records {
		if record.ContractLineID != nil && *record.ContractLineID != cfg.ContractLineID {
			continue
		}
		total = total.Add(record.Quantity)
	}
	return total, nil
}

func (s *invoiceService) automatedItem(ctx context.Context, inv *invoice.Invoice, serviceID, description string, quantity, unitRate decimal.Decimal) *invoice.InvoiceItem {
	return &invoice.InvoiceItem{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_INVOICE_LINE_ITEM),
		InvoiceID:   inv.ID,
		ServiceID:   &serviceID,
		Description: description,
		Quantity:    quantity,
		UnitRate:    unitRate,
		Currency:    inv.Currency,
		Source:      types.InvoiceItemSourceAutomated,
		IsTaxable:   inv.TaxRegion != "",
		BaseModel:   types.GetDefaultBaseModel(ctx),
	}
}
