package contractline

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// JSONB types for the type specific configuration payloads
type JSONBFixedConfig FixedConfig
type JSONBHourlyConfig HourlyConfig
type JSONBUsageConfig UsageConfig
type JSONBBucketConfig BucketConfig

// ContractLine is a named billing plan of type FIXED, HOURLY, USAGE or
// BUCKET, assignable to clients. It is never deleted while referenced
// by an active assignment; archival is handled via BaseModel.Status.
type ContractLine struct {
	ID string `db:"id" json:"id"`

	// Name of the billing plan as shown to operators
	Name string `db:"name" json:"name"`

	// BillingFrequency is the recurrence of the plan ex weekly, monthly
	BillingFrequency types.BillingFrequency `db:"billing_frequency" json:"billing_frequency"`

	// PlanType is the billing type of the plan ex FIXED, HOURLY, USAGE, BUCKET
	PlanType types.PlanType `db:"plan_type" json:"plan_type"`

	// Custom marks tenant specific plans created outside the standard catalog
	Custom bool `db:"custom" json:"custom"`

	types.BaseModel
}

func (c *ContractLine) Validate() error {
	if c.Name == "" {
		return ierr.NewError("contract line name is required").
			WithHint("Please provide a plan name").
			Mark(ierr.ErrValidation)
	}
	if err := c.BillingFrequency.Validate(); err != nil {
		return err
	}
	return c.PlanType.Validate()
}

// PlanAssignment links a client to a contract line for a validity window.
// EndDate is nil for open ended assignments.
type PlanAssignment struct {
	ID             string     `db:"id" json:"id"`
	ClientID       string     `db:"client_id" json:"client_id"`
	ContractLineID string     `db:"contract_line_id" json:"contract_line_id"`
	StartDate      time.Time  `db:"start_date" json:"start_date"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`

	types.BaseModel
}

// ActiveAt reports whether the assignment is valid as of the given time
func (a *PlanAssignment) ActiveAt(asOf time.Time) bool {
	if a.Status != types.StatusPublished {
		return false
	}
	if asOf.Before(a.StartDate) {
		return false
	}
	if a.EndDate != nil && !asOf.Before(*a.EndDate) {
		return false
	}
	return true
}

// ServiceConfiguration is the per (plan, service) billing configuration.
// Exactly one type specific payload is populated, matching ConfigurationType.
type ServiceConfiguration struct {
	ID             string `db:"id" json:"id"`
	ContractLineID string `db:"contract_line_id" json:"contract_line_id"`
	ServiceID      string `db:"service_id" json:"service_id"`

	// ConfigurationType mirrors the parent plan's type
	ConfigurationType types.PlanType `db:"configuration_type" json:"configuration_type"`

	// Quantity of the service included in the plan
	Quantity decimal.Decimal `db:"quantity" json:"quantity"`

	// CustomRate overrides the service's default rate when set
	CustomRate *decimal.Decimal `db:"custom_rate" json:"custom_rate,omitempty"`

	Fixed  *JSONBFixedConfig  `db:"fixed_config" json:"fixed_config,omitempty"`
	Hourly *JSONBHourlyConfig `db:"hourly_config" json:"hourly_config,omitempty"`
	Usage  *JSONBUsageConfig  `db:"usage_config" json:"usage_config,omitempty"`
	Bucket *JSONBBucketConfig `db:"bucket_config" json:"bucket_config,omitempty"`

	types.BaseModel
}

// FixedConfig configures a fixed fee service
type FixedConfig struct {
	// Prorated enables partial period billing adjustment
	Prorated bool `json:"prorated"`
	// Alignment controls whether the fee bills at cycle start, end or prorated
	Alignment types.BillingCycleAlignment `json:"alignment"`
}

// HourlyConfig configures an hourly billed service
type HourlyConfig struct {
	// HourlyRate is the base rate per hour
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	// MinimumBillableMinutes is the floor applied to every time entry
	MinimumBillableMinutes int `json:"minimum_billable_minutes"`
	// RoundUpToMinutes rounds billable time up to this granularity
	RoundUpToMinutes int `json:"round_up_to_minutes"`
	// UserTypeRates overrides the hourly rate per user type
	UserTypeRates map[string]decimal.Decimal `json:"user_type_rates,omitempty"`
	// OvertimeMultiplier applies plan wide to overtime entries
	OvertimeMultiplier *decimal.Decimal `json:"overtime_multiplier,omitempty"`
	// AfterHoursMultiplier applies plan wide to after hours entries
	AfterHoursMultiplier *decimal.Decimal `json:"after_hours_multiplier,omitempty"`
}

// RateForUserType returns the effective hourly rate for a user type,
// falling back to the base rate when no override exists.
func (h *HourlyConfig) RateForUserType(userType string) decimal.Decimal {
	if userType != "" {
		if rate, ok := h.UserTypeRates[userType]; ok {
			return rate
		}
	}
	return h.HourlyRate
}

// BillableMinutes applies the minimum billable time and round up
// granularity to an actual duration in minutes.
func (h *HourlyConfig) BillableMinutes(actualMinutes int64) int64 {
	minutes := actualMinutes
	if minutes < int64(h.MinimumBillableMinutes) {
		minutes = int64(h.MinimumBillableMinutes)
	}
	if h.RoundUpToMinutes > 0 {
		granularity := int64(h.RoundUpToMinutes)
		if remainder := minutes % granularity; remainder != 0 {
			minutes += granularity - remainder
		}
	}
	return minutes
}

// UsageConfig configures a usage billed service with a tiered rate table
type UsageConfig struct {
	Tiers []UsageTier `json:"tiers"`
}

// UsageTier is one row of a tiered rate table. The range is half open:
// [FromUnits, UpToUnits). UpToUnits is nil only for the final tier.
type UsageTier struct {
	FromUnits uint64 `json:"from_units"`
	// UpToUnits is the quantity up to which this tier applies. It is null for the last tier
	UpToUnits *uint64 `json:"up_to_units"`
	// UnitRate is the amount per unit for the given tier
	UnitRate decimal.Decimal `json:"unit_rate"`
}

// GetTierUpTo returns the up_to value for the tier and treats null case as MaxUint64.
// NOTE: Only to be used for sorting of tiers to avoid any unexpected behaviour
func (t UsageTier) GetTierUpTo() uint64 {
	if t.UpToUnits != nil {
		return *t.UpToUnits
	}
	return math.MaxUint64
}

// SortedTiers returns the tiers ordered by their upper bound
func (u *UsageConfig) SortedTiers() []UsageTier {
	tiers := make([]UsageTier, len(u.Tiers))
	copy(tiers, u.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].GetTierUpTo() < tiers[j].GetTierUpTo()
	})
	return tiers
}

// ValidateTiers checks the tier table is ordered, starts at zero,
// is contiguous and only the final tier is open ended. A gap or
// overlap is a configuration error, never silently resolved.
func (u *UsageConfig) ValidateTiers() error {
	if len(u.Tiers) == 0 {
		return ierr.NewError("usage tier table is empty").
			WithHint("Configure at least one rate tier").
			Mark(ierr.ErrInvalidTierTable)
	}

	tiers := u.SortedTiers()
	if tiers[0].FromUnits != 0 {
		return ierr.NewError("usage tier table does not start at zero").
			WithHintf("First tier starts at %d units, expected 0", tiers[0].FromUnits).
			Mark(ierr.ErrInvalidTierTable)
	}

	for i, tier := range tiers {
		if tier.UpToUnits == nil {
			if i != len(tiers)-1 {
				return ierr.NewError("open ended tier is not the last tier").
					WithHint("Only the final tier may omit an upper bound").
					Mark(ierr.ErrInvalidTierTable)
			}
			continue
		}
		if *tier.UpToUnits <= tier.FromUnits {
			return ierr.NewError("usage tier has an empty range").
				WithHintf("Tier [%d, %d) is empty", tier.FromUnits, *tier.UpToUnits).
				Mark(ierr.ErrInvalidTierTable)
		}
		if i < len(tiers)-1 && tiers[i+1].FromUnits != *tier.UpToUnits {
			return ierr.NewError("usage tier table has a gap or overlap").
				WithHintf("Tier ending at %d units is followed by a tier starting at %d", *tier.UpToUnits, tiers[i+1].FromUnits).
				WithReportableDetails(map[string]any{
					"up_to":      *tier.UpToUnits,
					"next_from":  tiers[i+1].FromUnits,
					"tier_index": i,
				}).
				Mark(ierr.ErrInvalidTierTable)
		}
	}

	return nil
}

// BucketConfig configures a prepaid bucket of time or units
type BucketConfig struct {
	// TotalMinutes is the prepaid allotment per billing period, in
	// minutes for time buckets or units for unit buckets
	TotalMinutes int64 `json:"total_minutes"`
	// OverageRate prices consumption beyond the allotment. When nil,
	// overage is an error condition rather than billed at zero
	OverageRate *decimal.Decimal `json:"overage_rate,omitempty"`
	// AllowRollover carries unused allotment into the next period
	AllowRollover bool `json:"allow_rollover"`
}

// Validate checks that exactly one type specific payload is populated
// and that it matches the configuration type.
func (c *ServiceConfiguration) Validate() error {
	if err := c.ConfigurationType.Validate(); err != nil {
		return err
	}
	if c.ServiceID == "" {
		return ierr.NewError("service id is required").
			WithHint("Service configuration must reference a service").
			Mark(ierr.ErrValidation)
	}
	if c.Quantity.IsNegative() {
		return ierr.NewError("quantity must be non negative").
			Mark(ierr.ErrValidation)
	}

	populated := 0
	for _, set := range []bool{c.Fixed != nil, c.Hourly != nil, c.Usage != nil, c.Bucket != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return ierr.NewError("exactly one configuration payload must be set").
			WithHintf("Found %d payloads for configuration type %s", populated, c.ConfigurationType).
			Mark(ierr.ErrValidation)
	}

	switch c.ConfigurationType {
	case types.PlanTypeFixed:
		if c.Fixed == nil {
			return mismatchedPayloadError(c.ConfigurationType)
		}
		return c.Fixed.Alignment.Validate()
	case types.PlanTypeHourly:
		if c.Hourly == nil {
			return mismatchedPayloadError(c.ConfigurationType)
		}
		if c.Hourly.HourlyRate.IsNegative() {
			return ierr.NewError("hourly rate must be non negative").
				Mark(ierr.ErrValidation)
		}
	case types.PlanTypeUsage:
		if c.Usage == nil {
			return mismatchedPayloadError(c.ConfigurationType)
		}
		return (*UsageConfig)(c.Usage).ValidateTiers()
	case types.PlanTypeBucket:
		if c.Bucket == nil {
			return mismatchedPayloadError(c.ConfigurationType)
		}
		if c.Bucket.TotalMinutes <= 0 {
			return ierr.NewError("bucket allotment must be positive").
				WithHintf("Got %d minutes", c.Bucket.TotalMinutes).
				Mark(ierr.ErrValidation)
		}
	}

	return nil
}

func mismatchedPayloadError(t types.PlanType) error {
	return ierr.NewError("configuration payload does not match configuration type").
		WithHintf("Configuration of type %s must carry the matching payload", t).
		Mark(ierr.ErrValidation)
}

// IsBucket reports whether this configuration bills against a bucket
func (c *ServiceConfiguration) IsBucket() bool {
	return c.ConfigurationType == types.PlanTypeBucket && c.Bucket != nil
}

// FixedConfig returns the fixed payload, nil when not a fixed configuration
func (c *ServiceConfiguration) FixedConfig() *FixedConfig {
	return (*FixedConfig)(c.Fixed)
}

// HourlyConfig returns the hourly payload, nil when not an hourly configuration
func (c *ServiceConfiguration) HourlyConfig() *HourlyConfig {
	return (*HourlyConfig)(c.Hourly)
}

// UsageConfig returns the usage payload, nil when not a usage configuration
func (c *ServiceConfiguration) UsageConfig() *UsageConfig {
	return (*UsageConfig)(c.Usage)
}

// BucketConfig returns the bucket payload, nil when not a bucket configuration
func (c *ServiceConfiguration) BucketConfig() *BucketConfig {
	return (*BucketConfig)(c.Bucket)
}

// Scanner/Valuer implementations for JSONBFixedConfig
func (j *JSONBFixedConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for jsonb fixed config")
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONBFixedConfig) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scanner/Valuer implementations for JSONBHourlyConfig
func (j *JSONBHourlyConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for jsonb hourly config")
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONBHourlyConfig) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scanner/Valuer implementations for JSONBUsageConfig
func (j *JSONBUsageConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for jsonb usage config")
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONBUsageConfig) Value() (driver.Value, error) {
	return json.Marshal(j)
}

// Scanner/Valuer implementations for JSONBBucketConfig
func (j *JSONBBucketConfig) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for jsonb bucket config")
	}
	return json.Unmarshal(bytes, j)
}

func (j JSONBBucketConfig) Value() (driver.Value, error) {
	return json.Marshal(j)
}
