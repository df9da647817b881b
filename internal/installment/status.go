package installment

import (
	"time"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

// DeriveStatus computes a plan's status from its schedule and the
// evaluation date. It is pure and idempotent, and it is the single
// source of truth: components that mutate a schedule must call it
// afterwards rather than assign a status by hand, so status can never
// drift from schedule reality.
//
// Cancelled is terminal and absorbing. A plan whose entries are all
// settled (tolerance-adjusted), or whose remaining balance has been
// driven to zero by a return adjustment, is Paid; otherwise it is
// Overdue when the earliest open entry's due date lies strictly before
// the evaluation date, and Active otherwise.
func DeriveStatus(plan domain.InstallmentPlan, entries []domain.ScheduleEntry, at time.Time) domain.PlanStatus {
	if plan.Status == domain.PlanStatusCancelled {
		return domain.PlanStatusCancelled
	}

	var earliestOpen *time.Time
	for i := range entries {
		if !entryOpen(entries[i]) {
			continue
		}
		due := entries[i].DueDate
		if earliestOpen == nil || due.Before(*earliestOpen) {
			earliestOpen = &due
		}
	}

	if earliestOpen == nil || Remaining(plan).WithinTolerance(money.Zero()) {
		return domain.PlanStatusPaid
	}
	if dateOnly(*earliestOpen).Before(dateOnly(at)) {
		return domain.PlanStatusOverdue
	}
	return domain.PlanStatusActive
}
