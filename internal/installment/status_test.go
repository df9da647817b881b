package installment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

func TestDeriveStatusActiveBeforeDueDate(t *testing.T) {
	plan, entries := testPlan(t)

	status := DeriveStatus(plan, entries, date(2026, time.February, 1))
	require.Equal(t, domain.PlanStatusActive, status)

	// Due date itself is not overdue; only strictly past it.
	status = DeriveStatus(plan, entries, date(2026, time.February, 15))
	require.Equal(t, domain.PlanStatusActive, status)
}

func TestDeriveStatusOverdueAfterMissedDueDate(t *testing.T) {
	plan, entries := testPlan(t)

	status := DeriveStatus(plan, entries, date(2026, time.February, 16))
	require.Equal(t, domain.PlanStatusOverdue, status)
}

func TestDeriveStatusOverdueClearsAfterCatchUp(t *testing.T) {
	plan, entries := testPlan(t)
	at := date(2026, time.February, 20)
	require.Equal(t, domain.PlanStatusOverdue, DeriveStatus(plan, entries, at))

	alloc, err := Allocate(plan, entries, money.FromCents(37333333), at)
	require.NoError(t, err)
	plan.AmountPaidCents += 37333333

	require.Equal(t, domain.PlanStatusActive, DeriveStatus(plan, alloc.Entries, at))
}

func TestDeriveStatusPaidWhenAllEntriesSettled(t *testing.T) {
	plan, entries := testPlan(t)
	at := date(2026, time.April, 20)

	alloc, err := Allocate(plan, entries, money.FromCents(112000000), at)
	require.NoError(t, err)
	plan.AmountPaidCents += 112000000

	require.Equal(t, domain.PlanStatusPaid, DeriveStatus(plan, alloc.Entries, at))
}

func TestDeriveStatusPaidViaReturnAdjustment(t *testing.T) {
	plan, entries := testPlan(t)

	// A return adjustment covering the whole open balance closes the
	// plan even though schedule entries remain unpaid.
	plan.ReturnAdjustmentCents = 112000000
	status := DeriveStatus(plan, entries, date(2026, time.February, 1))
	require.Equal(t, domain.PlanStatusPaid, status)
}

func TestDeriveStatusCancelledIsAbsorbing(t *testing.T) {
	plan, entries := testPlan(t)
	plan.Status = domain.PlanStatusCancelled

	require.Equal(t, domain.PlanStatusCancelled, DeriveStatus(plan, entries, date(2026, time.February, 1)))

	// Even a fully settled schedule never pulls a cancelled plan back.
	alloc, err := Allocate(domain.InstallmentPlan{TotalDueCents: plan.TotalDueCents, AmountPaidCents: plan.AmountPaidCents}, entries, money.FromCents(112000000), date(2026, time.April, 20))
	require.NoError(t, err)
	require.Equal(t, domain.PlanStatusCancelled, DeriveStatus(plan, alloc.Entries, date(2026, time.April, 20)))
}

func TestDeriveStatusIdempotent(t *testing.T) {
	plan, entries := testPlan(t)
	at := date(2026, time.March, 1)

	first := DeriveStatus(plan, entries, at)
	plan.Status = first
	second := DeriveStatus(plan, entries, at)
	require.Equal(t, first, second)
}

func TestDeriveStatusToleranceResidualIsPaid(t *testing.T) {
	plan, entries := testPlan(t)

	// Each entry one cent short: residuals within tolerance never count
	// as open balances.
	for i := range entries {
		entries[i].AmountPaidCents = entries[i].AmountDueCents - 1
	}
	plan.AmountPaidCents = plan.TotalDueCents - int64(len(entries))

	require.Equal(t, domain.PlanStatusPaid, DeriveStatus(plan, entries, date(2026, time.March, 1)))
}

func TestRemainingFloorsAtZero(t *testing.T) {
	plan := domain.InstallmentPlan{
		TotalDueCents:         100000,
		AmountPaidCents:       80000,
		ReturnAdjustmentCents: 30000,
	}
	require.True(t, Remaining(plan).IsZero())

	plan.ReturnAdjustmentCents = 10000
	require.Equal(t, int64(10000), Remaining(plan).Cents())
}
