package types

import (
	"time"

	ierr "github.com/billforge/billforge/internal/errors"
)

// BillingFrequency is the recurrence of a contract line or billing cycle
type BillingFrequency string

const (
	BILLING_FREQUENCY_WEEKLY     BillingFrequency = "weekly"
	BILLING_FREQUENCY_BIWEEKLY   BillingFrequency = "biweekly"
	BILLING_FREQUENCY_MONTHLY    BillingFrequency = "monthly"
	BILLING_FREQUENCY_QUARTERLY  BillingFrequency = "quarterly"
	BILLING_FREQUENCY_SEMIANNUAL BillingFrequency = "semiannual"
	BILLING_FREQUENCY_ANNUAL     BillingFrequency = "annual"
)

func (f BillingFrequency) Validate() error {
	switch f {
	case BILLING_FREQUENCY_WEEKLY,
		BILLING_FREQUENCY_BIWEEKLY,
		BILLING_FREQUENCY_MONTHLY,
		BILLING_FREQUENCY_QUARTERLY,
		BILLING_FREQUENCY_SEMIANNUAL,
		BILLING_FREQUENCY_ANNUAL:
		return nil
	default:
		return ierr.NewError("invalid billing frequency").
			WithHintf("Billing frequency %s is not supported", f).
			Mark(ierr.ErrValidation)
	}
}

// NextPeriodStart calculates the start of the period following the one
// that begins at start, for the given billing frequency.
// This leverages AddClampedDate, which properly handles leap years and
// month-boundary issues (e.g. Jan 31 + 1 month = Feb 28/29).
func NextPeriodStart(start time.Time, frequency BillingFrequency) (time.Time, error) {
	switch frequency {
	case BILLING_FREQUENCY_WEEKLY:
		return AddClampedDate(start, 0, 0, 7), nil
	case BILLING_FREQUENCY_BIWEEKLY:
		return AddClampedDate(start, 0, 0, 14), nil
	case BILLING_FREQUENCY_MONTHLY:
		return AddClampedDate(start, 0, 1, 0), nil
	case BILLING_FREQUENCY_QUARTERLY:
		return AddClampedDate(start, 0, 3, 0), nil
	case BILLING_FREQUENCY_SEMIANNUAL:
		return AddClampedDate(start, 0, 6, 0), nil
	case BILLING_FREQUENCY_ANNUAL:
		return AddClampedDate(start, 1, 0, 0), nil
	default:
		return start, ierr.NewError("invalid billing frequency").
			WithHintf("Billing frequency %s is not supported", frequency).
			Mark(ierr.ErrValidation)
	}
}

// CalendarPeriodBounds returns the half-open [start, end) calendar
// period containing t for the given frequency, anchored at natural
// calendar boundaries (Monday for weekly periods, the 1st for monthly
// and longer periods). Used when no explicit billing cycle covers t.
func CalendarPeriodBounds(t time.Time, frequency BillingFrequency) (time.Time, time.Time, error) {
	t = t.UTC()
	var start time.Time

	switch frequency {
	case BILLING_FREQUENCY_WEEKLY, BILLING_FREQUENCY_BIWEEKLY:
		// Monday of the current week
		offset := (int(t.Weekday()) + 6) % 7
		start = time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	case BILLING_FREQUENCY_MONTHLY:
		start = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case BILLING_FREQUENCY_QUARTERLY:
		quarterMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
		start = time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
	case BILLING_FREQUENCY_SEMIANNUAL:
		halfMonth := time.Month(((int(t.Month())-1)/6)*6 + 1)
		start = time.Date(t.Year(), halfMonth, 1, 0, 0, 0, 0, time.UTC)
	case BILLING_FREQUENCY_ANNUAL:
		start = time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Time{}, time.Time{}, ierr.NewError("invalid billing frequency").
			WithHintf("Billing frequency %s is not supported", frequency).
			Mark(ierr.ErrValidation)
	}

	end, err := NextPeriodStart(start, frequency)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// AddClampedDate adds the given years, months and days to t, clamping
// the day of month to the last valid day of the target month.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	newY := y + years
	newM := time.Month(int(m) + months)

	// If we move beyond December, it adjusts correctly,
	// for example adding 2 months to November will land on January next year.
	for newM > 12 {
		newM -= 12
		newY++
	}
	for newM < 1 {
		newM += 12
		newY--
	}

	// Find the last valid day of the new month
	firstOfNextMonth := time.Date(newY, newM+1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfNextMonth.Add(-24 * time.Hour).Day()

	newD := d
	if newD > lastDay {
		newD = lastDay
	}

	return time.Date(newY, newM, newD, h, min, sec, t.Nanosecond(), t.Location()).AddDate(0, 0, days)
}
