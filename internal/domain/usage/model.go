package usage

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
	"github.com/billforge/billforge/internal/types"
	"github.com/shopspring/decimal"
)

// UsageRecord is one unit of recorded work or consumption for a client
// and service. ContractLineID is nil until the record has been resolved
// to a specific contract line, either explicitly by the operator or by
// plan disambiguation.
type UsageRecord struct {
	ID        string `db:"id" json:"id"`
	ClientID  string `db:"client_id" json:"client_id"`
	ServiceID string `db:"service_id" json:"service_id"`

	Quantity  decimal.Decimal `db:"quantity" json:"quantity"`
	UsageDate time.Time       `db:"usage_date" json:"usage_date"`

	ContractLineID *string `db:"contract_line_id" json:"contract_line_id,omitempty"`

	types.BaseModel
}

func (u *UsageRecord) Validate() error {
	if u.ClientID == "" {
		return ierr.NewError("client id is required").
			Mark(ierr.ErrValidation)
	}
	if u.ServiceID == "" {
		return ierr.NewError("service id is required").
			Mark(ierr.ErrValidation)
	}
	if u.Quantity.IsNegative() || u.Quantity.IsZero() {
		return ierr.NewError("quantity must be positive").
			WithHintf("Got %s", u.Quantity.String()).
			Mark(ierr.ErrValidation)
	}
	if u.UsageDate.IsZero() {
		return ierr.NewError("usage date is required").
			Mark(ierr.ErrValidation)
	}
	return nil
}
