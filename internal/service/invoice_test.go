package service

import (
	"testing"
	"time"

	"github.com/billforge/billforge/internal/api/dto"
	"github.com/billforge/billforge/internal/domain/contractline"
	"github.com/billforge/billforge/internal/domain/invoice"
	"github.com/billforge/billforge/internal/domain/taxrate"
	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/testutil"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type InvoiceServiceSuite struct {
	testutil.BaseServiceTestSuite
	service InvoiceService
	asOf    time.Time
}

func TestInvoiceService(t *testing.T) {
	suite.Run(t, new(InvoiceServiceSuite))
}

func (s *InvoiceServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewInvoiceService(ServiceParams{
		Logger:            s.GetLogger(),
		Config:            s.GetConfig(),
		DB:                s.GetDB(),
		Cache:             s.GetCache(),
		ContractLineRepo:  s.GetStores().ContractLineRepo,
		ServiceConfigRepo: s.GetStores().ServiceConfigRepo,
		AssignmentRepo:    s.GetStores().AssignmentRepo,
		BillingCycleRepo:  s.GetStores().BillingCycleRepo,
		BucketLedgerRepo:  s.GetStores().BucketLedgerRepo,
		InvoiceRepo:       s.GetStores().InvoiceRepo,
		UsageRepo:         s.GetStores().UsageRepo,
		TaxRateRepo:       s.GetStores().TaxRateRepo,
		TaxRateProvider:   s.GetStores().TaxRateProvider,
	})
	s.asOf = time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
}

func (s *InvoiceServiceSuite) createDraftInvoice(taxRegion string, credit decimal.Decimal) *invoice.Invoice {
	inv, err := s.service.CreateInvoice(s.GetContext(), &dto.CreateInvoiceRequest{
		ClientID:      "client_1",
		Currency:      "usd",
		TaxRegion:     taxRegion,
		CreditApplied: credit,
	})
	s.Require().NoError(err)
	s.True(inv.IsDraft())
	return inv
}

func (s *InvoiceServiceSuite) addCharge(invoiceID, description string, quantity, unitRate decimal.Decimal, taxable bool) *invoice.Invoice {
	inv, err := s.service.AddItem(s.GetContext(), invoiceID, &dto.AddInvoiceItemRequest{
		Description: description,
		Quantity:    quantity,
		UnitRate:    unitRate,
		IsTaxable:   taxable,
	}, s.asOf)
	s.Require().NoError(err)
	return inv
}

func (s *InvoiceServiceSuite) TestPercentageDiscountsUseOriginalAmounts() {
	inv := s.createDraftInvoice("", decimal.Zero)
	s.addCharge(inv.ID, "Implementation", decimal.NewFromInt(1), decimal.NewFromInt(100), false)
	s.addCharge(inv.ID, "Support", decimal.NewFromInt(1), decimal.NewFromInt(50), false)

	inv, err := s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description:        "Loyalty discount",
		IsDiscount:         true,
		DiscountType:       types.DiscountTypePercentage,
		DiscountPercentage: lo.ToPtr(decimal.NewFromInt(10)),
	}, s.asOf)
	s.NoError(err)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(135)), "10%% of 150 is 15, total %s", inv.TotalAmount)

	// A second 10% discount also computes against the original 150,
	// not the already discounted total
	inv, err = s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description:        "Partner discount",
		IsDiscount:         true,
		DiscountType:       types.DiscountTypePercentage,
		DiscountPercentage: lo.ToPtr(decimal.NewFromInt(10)),
	}, s.asOf)
	s.NoError(err)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(120)), "each discount is 15, total %s", inv.TotalAmount)
}

func (s *InvoiceServiceSuite) TestPercentageDiscountTargetsSingleItem() {
	inv := s.createDraftInvoice("", decimal.Zero)
	inv = s.addCharge(inv.ID, "Implementation", decimal.NewFromInt(1), decimal.NewFromInt(100), false)
	targetID := inv.Items[0].ID
	s.addCharge(inv.ID, "Support", decimal.NewFromInt(1), decimal.NewFromInt(50), false)

	inv, err := s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description:        "Implementation discount",
		IsDiscount:         true,
		DiscountType:       types.DiscountTypePercentage,
		DiscountPercentage: lo.ToPtr(decimal.NewFromInt(10)),
		AppliesToItemID:    lo.ToPtr(targetID),
	}, s.asOf)
	s.NoError(err)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(140)), "10%% of the 100 item only, total %s", inv.TotalAmount)
}

func (s *InvoiceServiceSuite) TestAggregateWithFixedDiscountAndCredit() {
	inv := s.createDraftInvoice("", decimal.NewFromInt(10))
	s.addCharge(inv.ID, "Monthly retainer", decimal.NewFromInt(1), decimal.NewFromInt(200), false)

	inv, err := s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description:  "Goodwill discount",
		Quantity:     decimal.NewFromInt(1),
		UnitRate:     decimal.NewFromInt(-20),
		IsDiscount:   true,
		DiscountType: types.DiscountTypeFixed,
	}, s.asOf)
	s.NoError(err)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(170)), "200 - 20 - 10 = 170, got %s", inv.TotalAmount)
}

// seedGraduatedUsagePlan sets up a two tier usage plan for client_1
// with 150 units recorded in March 2025. The first 100 units bill at
// 0.10 and the rest at 0.05, so a March computation yields 12.5.
func (s *InvoiceServiceSuite) seedGraduatedUsagePlan() {
	line := &contractline.ContractLine{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CONTRACT_LINE),
		Name:             "API calls",
		BillingFrequency: types.BILLING_FREQUENCY_MONTHLY,
		PlanType:         types.PlanTypeUsage,
		BaseModel:        types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ContractLineRepo.Create(s.GetContext(), line))

	cfg := &contractline.ServiceConfiguration{
		ID:                types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SERVICE_CONFIG),
		ContractLineID:    line.ID,
		ServiceID:         "svc_api",
		ConfigurationType: types.PlanTypeUsage,
		Quantity:          decimal.NewFromInt(1),
		Usage: &contractline.JSONBUsageConfig{
			Tiers: []contractline.UsageTier{
				{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
				{FromUnits: 100, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
			},
		},
		BaseModel: types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().ServiceConfigRepo.Create(s.GetContext(), cfg))

	s.NoError(s.GetStores().AssignmentRepo.Create(s.GetContext(), &contractline.PlanAssignment{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PLAN_ASSIGNMENT),
		ClientID:       "client_1",
		ContractLineID: line.ID,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}))

	s.NoError(s.GetStores().UsageRepo.Create(s.GetContext(), &usage.UsageRecord{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		ClientID:       "client_1",
		ServiceID:      "svc_api",
		Quantity:       decimal.NewFromInt(150),
		UsageDate:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		ContractLineID: &line.ID,
		BaseModel:      types.GetDefaultBaseModel(s.GetContext()),
	}))
}

func (s *InvoiceServiceSuite) TestComputeInvoiceItemsGraduatedTiers() {
	s.seedGraduatedUsagePlan()

	inv := s.createDraftInvoice("", decimal.Zero)
	inv, err := s.service.ComputeInvoiceItems(s.GetContext(), inv.ID,
		time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	s.NoError(err)

	s.Require().Len(inv.Items, 2, "one line per tier consumed")
	s.True(inv.Items[0].TotalPrice.Equal(decimal.NewFromInt(10)), "100 units at 0.10")
	s.True(inv.Items[1].TotalPrice.Equal(decimal.NewFromFloat(2.5)), "50 units at 0.05")
	s.True(inv.TotalAmount.Equal(decimal.NewFromFloat(12.5)))
	s.Equal(types.InvoiceItemSourceAutomated, inv.Items[0].Source)
}

func (s *InvoiceServiceSuite) TestComputeInvoiceItemsReplacesAutomatedCharges() {
	s.seedGraduatedUsagePlan()

	inv := s.createDraftInvoice("", decimal.Zero)
	s.addCharge(inv.ID, "Onboarding", decimal.NewFromInt(1), decimal.NewFromInt(50), false)

	periodStart := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	inv, err := s.service.ComputeInvoiceItems(s.GetContext(), inv.ID, periodStart, periodEnd)
	s.NoError(err)
	s.Require().Len(inv.Items, 3, "the manual charge plus one line per tier")
	s.True(inv.TotalAmount.Equal(decimal.NewFromFloat(62.5)), "got %s", inv.TotalAmount)

	// Running generation again for the same period replaces the earlier
	// automated charges instead of billing them twice
	inv, err = s.service.ComputeInvoiceItems(s.GetContext(), inv.ID, periodStart, periodEnd)
	s.NoError(err)
	s.Len(inv.Items, 3)
	s.True(inv.TotalAmount.Equal(decimal.NewFromFloat(62.5)), "got %s", inv.TotalAmount)

	reloaded, err := s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.Len(reloaded.Items, 3)
	s.True(reloaded.TotalAmount.Equal(decimal.NewFromFloat(62.5)))
}

func (s *InvoiceServiceSuite) TestFinalizeBlockedWithoutActiveTaxRate() {
	// Rate active in March only; finalizing in April finds no rate
	s.NoError(s.GetStores().TaxRateRepo.Create(s.GetContext(), &taxrate.TaxRate{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TAX_RATE),
		Name:          "VAT",
		Region:        "EU",
		Percentage:    decimal.NewFromInt(20),
		EffectiveFrom: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		EffectiveTo:   lo.ToPtr(time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)),
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}))

	inv := s.createDraftInvoice("EU", decimal.Zero)
	s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), true)

	_, err := s.service.FinalizeInvoice(s.GetContext(), inv.ID, time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC))
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrNoActiveTaxRate))

	reloaded, err := s.service.GetInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(reloaded.IsDraft(), "failed finalize leaves the invoice draft")
}

func (s *InvoiceServiceSuite) TestFinalizeAppliesTax() {
	s.NoError(s.GetStores().TaxRateRepo.Create(s.GetContext(), &taxrate.TaxRate{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TAX_RATE),
		Name:          "VAT",
		Region:        "EU",
		Percentage:    decimal.NewFromInt(20),
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}))

	inv := s.createDraftInvoice("EU", decimal.Zero)
	s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), true)

	inv, err := s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	s.True(inv.IsFinalized())
	s.NotNil(inv.FinalizedAt)
	s.True(inv.Items[0].TaxAmount.Equal(decimal.NewFromInt(20)))
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(120)))
}

func (s *InvoiceServiceSuite) TestRecomputeSeesUpdatedTaxRate() {
	rate := &taxrate.TaxRate{
		ID:            types.GenerateUUIDWithPrefix(types.UUID_PREFIX_TAX_RATE),
		Name:          "VAT",
		Region:        "EU",
		Percentage:    decimal.NewFromInt(20),
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		BaseModel:     types.GetDefaultBaseModel(s.GetContext()),
	}
	s.NoError(s.GetStores().TaxRateRepo.Create(s.GetContext(), rate))

	inv := s.createDraftInvoice("EU", decimal.Zero)
	inv = s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), true)
	s.True(inv.Items[0].TaxAmount.Equal(decimal.NewFromInt(20)))

	// Correcting the rate drops the memoized lookup, so recomputing at
	// the same asOf prices against the corrected percentage
	revised := &taxrate.TaxRate{
		ID:            rate.ID,
		Name:          rate.Name,
		Region:        rate.Region,
		Percentage:    decimal.NewFromInt(25),
		EffectiveFrom: rate.EffectiveFrom,
		BaseModel:     rate.BaseModel,
	}
	s.NoError(s.GetStores().TaxRateRepo.Update(s.GetContext(), revised))

	inv, err := s.service.RecomputeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	s.True(inv.Items[0].TaxAmount.Equal(decimal.NewFromInt(25)), "got %s", inv.Items[0].TaxAmount)
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(125)), "got %s", inv.TotalAmount)
}

func (s *InvoiceServiceSuite) TestUnfinalizeBlockedAfterDelivery() {
	inv := s.createDraftInvoice("", decimal.Zero)
	s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), false)

	_, err := s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)

	// Finalized but undelivered invoices can reopen
	reopened, err := s.service.UnfinalizeInvoice(s.GetContext(), inv.ID)
	s.NoError(err)
	s.True(reopened.IsDraft())
	s.Nil(reopened.FinalizedAt)

	_, err = s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	_, err = s.service.MarkDelivered(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)

	_, err = s.service.UnfinalizeInvoice(s.GetContext(), inv.ID)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvoiceNotEditable))
}

func (s *InvoiceServiceSuite) TestMarkDeliveredFinalizesDraft() {
	inv := s.createDraftInvoice("", decimal.Zero)
	s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), false)

	inv, err := s.service.MarkDelivered(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	s.True(inv.IsFinalized(), "delivery finalizes a draft invoice")
	s.True(inv.IsDelivered())
}

func (s *InvoiceServiceSuite) TestFinalizedInvoiceRejectsItemMutation() {
	inv := s.createDraftInvoice("", decimal.Zero)
	inv = s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), false)
	itemID := inv.Items[0].ID

	_, err := s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)

	_, err = s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description: "Late fee",
		Quantity:    decimal.NewFromInt(1),
		UnitRate:    decimal.NewFromInt(25),
	}, s.asOf)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvoiceNotEditable))

	_, err = s.service.RemoveItem(s.GetContext(), inv.ID, itemID, s.asOf)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvoiceNotEditable))
}

func (s *InvoiceServiceSuite) TestRemovalTombstoneLifecycle() {
	inv := s.createDraftInvoice("", decimal.Zero)
	inv = s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromInt(100), false)
	itemID := inv.Items[0].ID
	s.addCharge(inv.ID, "Support", decimal.NewFromInt(1), decimal.NewFromInt(50), false)

	inv, err := s.service.RemoveItem(s.GetContext(), inv.ID, itemID, s.asOf)
	s.NoError(err)
	s.Len(inv.Items, 2, "tombstoned item stays visible until committed")
	s.True(inv.HasPendingRemovals())
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(50)), "tombstoned item is excluded from the total")

	// Pending removals block finalization
	_, err = s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.Error(err)
	s.True(ierr.Is(err, ierr.ErrInvalidOperation))

	inv, err = s.service.CommitItemRemovals(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	s.Len(inv.Items, 1)
	s.False(inv.HasPendingRemovals())

	inv, err = s.service.FinalizeInvoice(s.GetContext(), inv.ID, s.asOf)
	s.NoError(err)
	s.True(inv.IsFinalized())
	s.True(inv.TotalAmount.Equal(decimal.NewFromInt(50)))
}

func (s *InvoiceServiceSuite) TestPercentageRoundingHalfUp() {
	inv := s.createDraftInvoice("", decimal.Zero)
	s.addCharge(inv.ID, "Consulting", decimal.NewFromInt(1), decimal.NewFromFloat(100.05), false)

	inv, err := s.service.AddItem(s.GetContext(), inv.ID, &dto.AddInvoiceItemRequest{
		Description:        "Half cent discount",
		IsDiscount:         true,
		DiscountType:       types.DiscountTypePercentage,
		DiscountPercentage: lo.ToPtr(decimal.NewFromInt(10)),
	}, s.asOf)
	s.NoError(err)

	// 10% of 100.05 is 10.005, rounding half up to -10.01
	discount := inv.Items[1]
	s.True(discount.TotalPrice.Equal(decimal.NewFromFloat(-10.01)), "got %s", discount.TotalPrice)
	s.True(inv.TotalAmount.Equal(decimal.NewFromFloat(90.04)), "got %s", inv.TotalAmount)
}
