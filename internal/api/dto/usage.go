package dto

import (
	"context"
	"time"

	"github.com/billforge/billforge/internal/domain/bucket"
	"github.com/billforge/billforge/internal/domain/contractline"
	"github.com/billforge/billforge/internal/domain/usage"
	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/billforge/billforge/internal/validator"
	"github.com/shopspring/decimal"
)

// RecordUsageRequest records one unit of work or consumption for a
// client and service. ContractLineID pins the record to a specific
// plan; when omitted the plan is resolved by disambiguation.
type RecordUsageRequest struct {
	ClientID       string          `json:"client_id" validate:"required"`
	ServiceID      string          `json:"service_id" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	UsageDate      time.Time       `json:"usage_date" validate:"required"`
	ContractLineID *string         `json:"contract_line_id,omitempty"`
}

func (r *RecordUsageRequest) Validate() error {
	if err := validator.ValidateRequest(r); err != nil {
		return err
	}
	if r.Quantity.IsNegative() || r.Quantity.IsZero() {
		return ierr.NewError("quantity must be positive").
			WithHintf("Got %s", r.Quantity.String()).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ToUsageRecord converts the request to a domain usage record
func (r *RecordUsageRequest) ToUsageRecord(ctx context.Context) *usage.UsageRecord {
	return &usage.UsageRecord{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_USAGE_RECORD),
		ClientID:       r.ClientID,
		ServiceID:      r.ServiceID,
		Quantity:       r.Quantity,
		UsageDate:      r.UsageDate.UTC(),
		ContractLineID: r.ContractLineID,
		BaseModel:      types.GetDefaultBaseModel(ctx),
	}
}

// AmbiguityResult is returned when plan resolution cannot choose a
// contract line on its own. The caller must retry with an explicit
// contract line from Candidates.
type AmbiguityResult struct {
	Reason     string                               `json:"reason"`
	Candidates []*contractline.ServiceConfiguration `json:"candidates"`
}

// RecordUsageResponse carries the persisted record, the bucket ledger
// state when the chosen plan bills against a bucket, or the ambiguity
// to resolve. Exactly one of Record and Ambiguity is set.
type RecordUsageResponse struct {
	Record      *usage.UsageRecord  `json:"record,omitempty"`
	LedgerState *bucket.LedgerState `json:"ledger_state,omitempty"`
	Ambiguity   *AmbiguityResult    `json:"ambiguity,omitempty"`
}
