package contractline

import (
	"testing"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTiers(t *testing.T) {
	tests := []struct {
		name    string
		tiers   []UsageTier
		wantErr bool
	}{
		{
			name: "valid contiguous table",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
				{FromUnits: 100, UpToUnits: lo.ToPtr(uint64(500)), UnitRate: decimal.NewFromFloat(0.08)},
				{FromUnits: 500, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
			},
		},
		{
			name: "single open ended tier",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.10)},
			},
		},
		{
			name:    "empty table",
			tiers:   []UsageTier{},
			wantErr: true,
		},
		{
			name: "does not start at zero",
			tiers: []UsageTier{
				{FromUnits: 10, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.10)},
			},
			wantErr: true,
		},
		{
			name: "gap between tiers",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
				{FromUnits: 150, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
			},
			wantErr: true,
		},
		{
			name: "overlapping tiers",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
				{FromUnits: 80, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
			},
			wantErr: true,
		},
		{
			name: "empty range",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(0)), UnitRate: decimal.NewFromFloat(0.10)},
			},
			wantErr: true,
		},
		{
			name: "open ended tier in the middle",
			tiers: []UsageTier{
				{FromUnits: 0, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.10)},
				{FromUnits: 100, UpToUnits: lo.ToPtr(uint64(200)), UnitRate: decimal.NewFromFloat(0.05)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &UsageConfig{Tiers: tt.tiers}
			err := cfg.ValidateTiers()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, ierr.Is(err, ierr.ErrInvalidTierTable))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGraduatedCharges(t *testing.T) {
	cfg := &UsageConfig{
		Tiers: []UsageTier{
			{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
			{FromUnits: 100, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
		},
	}

	charges, err := cfg.GraduatedCharges(decimal.NewFromInt(150))
	require.NoError(t, err)
	require.Len(t, charges, 2)

	assert.True(t, charges[0].Quantity.Equal(decimal.NewFromInt(100)))
	assert.True(t, charges[0].UnitRate.Equal(decimal.NewFromFloat(0.10)))
	assert.True(t, charges[1].Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, charges[1].UnitRate.Equal(decimal.NewFromFloat(0.05)))

	total := charges[0].Amount().Add(charges[1].Amount())
	assert.True(t, total.Equal(decimal.NewFromFloat(12.5)))
}

func TestGraduatedChargesWithinFirstTier(t *testing.T) {
	cfg := &UsageConfig{
		Tiers: []UsageTier{
			{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
			{FromUnits: 100, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
		},
	}

	charges, err := cfg.GraduatedCharges(decimal.NewFromInt(40))
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[0].Quantity.Equal(decimal.NewFromInt(40)))
}

func TestGraduatedChargesRejectsMalformedTable(t *testing.T) {
	cfg := &UsageConfig{
		Tiers: []UsageTier{
			{FromUnits: 0, UpToUnits: lo.ToPtr(uint64(100)), UnitRate: decimal.NewFromFloat(0.10)},
			{FromUnits: 150, UpToUnits: nil, UnitRate: decimal.NewFromFloat(0.05)},
		},
	}

	_, err := cfg.GraduatedCharges(decimal.NewFromInt(150))
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrInvalidTierTable))
}

func TestHourlyConfigBillableMinutes(t *testing.T) {
	cfg := &HourlyConfig{
		HourlyRate:             decimal.NewFromInt(120),
		MinimumBillableMinutes: 15,
		RoundUpToMinutes:       6,
	}

	assert.Equal(t, int64(18), cfg.BillableMinutes(5), "minimum then round up")
	assert.Equal(t, int64(18), cfg.BillableMinutes(16))
	assert.Equal(t, int64(30), cfg.BillableMinutes(30), "exact multiple unchanged")
}

func TestHourlyConfigRateForUserType(t *testing.T) {
	cfg := &HourlyConfig{
		HourlyRate: decimal.NewFromInt(100),
		UserTypeRates: map[string]decimal.Decimal{
			"senior": decimal.NewFromInt(150),
		},
	}

	assert.True(t, cfg.RateForUserType("senior").Equal(decimal.NewFromInt(150)))
	assert.True(t, cfg.RateForUserType("junior").Equal(decimal.NewFromInt(100)))
	assert.True(t, cfg.RateForUserType("").Equal(decimal.NewFromInt(100)))
}

func TestServiceConfigurationValidatePayloadMatch(t *testing.T) {
	cfg := &ServiceConfiguration{
		ID:                "cfg_test",
		ContractLineID:    "plan_test",
		ServiceID:         "svc_test",
		ConfigurationType: types.PlanTypeBucket,
		Quantity:          decimal.NewFromInt(1),
		Bucket:            &JSONBBucketConfig{TotalMinutes: 600},
	}
	require.NoError(t, cfg.Validate())

	cfg.Bucket = nil
	cfg.Fixed = &JSONBFixedConfig{Alignment: types.BillingCycleAlignmentStart}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, ierr.Is(err, ierr.ErrValidation))
}
