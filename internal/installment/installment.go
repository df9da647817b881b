// Package installment implements the credit engine behind financed
// sales: schedule generation, payment allocation across schedule
// entries, and the derived plan state machine. The package is pure —
// it performs no I/O and never reads the wall clock; persistence and
// locking belong to the orchestrating service and its repository.
package installment

import (
	"errors"
	"time"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

var (
	// ErrInvalidTerms signals malformed plan parameters at creation.
	ErrInvalidTerms = errors.New("invalid plan terms")
	// ErrInvalidPayment signals a non-positive payment amount.
	ErrInvalidPayment = errors.New("payment amount must be positive")
	// ErrExcessPayment signals an incoming payment that exceeds the
	// plan's remaining balance. Never silently clamped.
	ErrExcessPayment = errors.New("payment exceeds remaining balance")
	// ErrPlanClosed signals a mutation attempt on a paid or cancelled plan.
	ErrPlanClosed = errors.New("plan is closed")
)

// Remaining is the amount still owed on a plan: total due net of return
// adjustments and payments, floored at zero.
func Remaining(plan domain.InstallmentPlan) money.Money {
	remaining := money.FromCents(plan.TotalDueCents).
		Sub(money.FromCents(plan.ReturnAdjustmentCents)).
		Sub(money.FromCents(plan.AmountPaidCents))
	if remaining.IsNegative() {
		return money.Zero()
	}
	return remaining
}

// entryOpen reports whether a schedule entry still owes more than the
// rounding tolerance. Residuals at or below one currency unit count as
// settled, never as a genuine shortfall.
func entryOpen(entry domain.ScheduleEntry) bool {
	outstanding := money.FromCents(entry.AmountDueCents).Sub(money.FromCents(entry.AmountPaidCents))
	return outstanding.GreaterThan(money.FromCents(1))
}

// dateOnly strips the time-of-day so due-date comparisons work on
// calendar dates regardless of the caller's clock precision.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
