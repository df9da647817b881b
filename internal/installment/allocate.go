package installment

import (
	"sort"
	"time"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

// Allocation is the result of distributing a payment across a plan's
// schedule. Entries holds the full updated schedule in due-date order.
type Allocation struct {
	Applied  money.Money
	Leftover money.Money
	Entries  []domain.ScheduleEntry
}

// Allocate distributes amount across the plan's unpaid schedule entries
// oldest-due-first. A payment exceeding the plan's remaining balance is
// rejected with ErrExcessPayment rather than silently clamped, so the
// audit trail stays exact.
//
// When an entry's residual falls within the rounding tolerance it is
// marked paid with amount_paid forced to amount_due exactly, absorbing
// the dust into the entry instead of leaving a phantom balance. The
// input slice is not mutated.
func Allocate(plan domain.InstallmentPlan, entries []domain.ScheduleEntry, amount money.Money, paidAt time.Time) (Allocation, error) {
	if !amount.GreaterThan(money.Zero()) {
		return Allocation{}, ErrInvalidPayment
	}
	if amount.GreaterThan(Remaining(plan)) {
		return Allocation{}, ErrExcessPayment
	}

	updated := make([]domain.ScheduleEntry, len(entries))
	copy(updated, entries)
	sort.Slice(updated, func(i, j int) bool {
		return updated[i].DueDate.Before(updated[j].DueDate)
	})

	funds := amount
	for i := range updated {
		if !funds.GreaterThan(money.Zero()) {
			break
		}
		if !entryOpen(updated[i]) {
			continue
		}

		due := money.FromCents(updated[i].AmountDueCents)
		paid := money.FromCents(updated[i].AmountPaidCents)
		needed := due.Sub(paid)
		applied := money.Min(funds, needed)

		paid = paid.Add(applied)
		funds = funds.Sub(applied)

		if due.Sub(paid).WithinTolerance(money.Zero()) {
			paid = due
			at := paidAt
			updated[i].Paid = true
			updated[i].PaidAt = &at
		}
		updated[i].AmountPaidCents = paid.Cents()
	}

	return Allocation{
		Applied:  amount.Sub(funds),
		Leftover: funds,
		Entries:  updated,
	}, nil
}
