package bucket

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// LedgerKey identifies one bucket ledger: a client consuming a service
// under a bucket contract line within a billing period.
type LedgerKey struct {
	ClientID       string `json:"client_id"`
	ServiceID      string `json:"service_id"`
	ContractLineID string `json:"contract_line_id"`
}

// BucketLedger tracks consumption against a prepaid allotment for one
// billing period. Remaining and overage are derived, never stored
// independently of consumed.
type BucketLedger struct {
	ID             string `db:"id" json:"id"`
	ClientID       string `db:"client_id" json:"client_id"`
	ServiceID      string `db:"service_id" json:"service_id"`
	ContractLineID string `db:"contract_line_id" json:"contract_line_id"`

	PeriodStart time.Time `db:"period_start" json:"period_start"`
	PeriodEnd   time.Time `db:"period_end" json:"period_end"`

	// TotalAllotment is the prepaid allotment for this period, in
	// minutes or units depending on the bucket configuration
	TotalAllotment int64 `db:"total_allotment" json:"total_allotment"`

	// RolledOverRemainder is the unused allotment carried in from the
	// previous period
	RolledOverRemainder int64 `db:"rolled_over_remainder" json:"rolled_over_remainder"`

	// Consumed is the total quantity recorded against this period
	Consumed int64 `db:"consumed" json:"consumed"`

	// RolledOverAt marks that this period's remainder has been carried
	// into the next period. Set at most once per ledger.
	RolledOverAt *time.Time `db:"rolled_over_at" json:"rolled_over_at,omitempty"`

	// Version guards concurrent consumption updates
	Version int `db:"version" json:"version"`

	types.BaseModel
}

// Key returns the ledger's identifying key
func (l *BucketLedger) Key() LedgerKey {
	return LedgerKey{
		ClientID:       l.ClientID,
		ServiceID:      l.ServiceID,
		ContractLineID: l.ContractLineID,
	}
}

// TotalAvailable is the allotment plus any rolled over remainder
func (l *BucketLedger) TotalAvailable() int64 {
	return l.TotalAllotment + l.RolledOverRemainder
}

// Remaining is the unused capacity, floored at zero
func (l *BucketLedger) Remaining() int64 {
	remaining := l.TotalAvailable() - l.Consumed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Overage is the consumption beyond the available capacity, floored at zero
func (l *BucketLedger) Overage() int64 {
	overage := l.Consumed - l.TotalAvailable()
	if overage < 0 {
		return 0
	}
	return overage
}

func (l *BucketLedger) Validate() error {
	if l.ClientID == "" || l.ServiceID == "" || l.ContractLineID == "" {
		return ierr.NewError("ledger key is incomplete").
			WithHint("Client, service and contract line are all required").
			Mark(ierr.ErrValidation)
	}
	if l.Consumed < 0 {
		return ierr.NewError("consumed quantity must be non negative").
			Mark(ierr.ErrValidation)
	}
	if !l.PeriodEnd.After(l.PeriodStart) {
		return ierr.NewError("period end must be after period start").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// LedgerState is the derived view returned after every consumption
// write. BillableOverage is set when overage exists and an overage rate
// is configured; the invoice line computer bills that quantity at the
// given rate.
type LedgerState struct {
	Ledger         *BucketLedger    `json:"ledger"`
	TotalAvailable int64            `json:"total_available"`
	Consumed       int64            `json:"consumed"`
	Remaining      int64            `json:"remaining"`
	Overage        int64            `json:"overage"`
	OverageRate    *decimal.Decimal `json:"overage_rate,omitempty"`
}

// NewLedgerState derives the state view from a ledger
func NewLedgerState(l *BucketLedger, overageRate *decimal.Decimal) *LedgerState {
	return &LedgerState{
		Ledger:         l,
		TotalAvailable: l.TotalAvailable(),
		Consumed:       l.Consumed,
		Remaining:      l.Remaining(),
		Overage:        l.Overage(),
		OverageRate:    overageRate,
	}
}

// BillableOverageAmount is the overage quantity priced at the overage
// rate, zero when there is no overage or no rate.
func (s *LedgerState) BillableOverageAmount() decimal.Decimal {
	if s.Overage <= 0 || s.OverageRate == nil {
		return decimal.Zero
	}
	return s.OverageRate.Mul(decimal.NewFromInt(s.Overage))
}
