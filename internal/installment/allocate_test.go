package installment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

// testPlan mirrors a financed sale of 1,200,000 at 10% flat over three
// months with a 200,000 down payment: total due 1,320,000, financed
// 1,120,000 split 373,333.33 / 373,333.33 / 373,333.34.
func testPlan(t *testing.T) (domain.InstallmentPlan, []domain.ScheduleEntry) {
	t.Helper()
	sched, err := Generate(Terms{
		Principal:   money.FromInt(1200000),
		RatePct:     10,
		TermMonths:  3,
		DownPayment: money.FromInt(200000),
	}, date(2026, time.January, 15))
	require.NoError(t, err)

	plan := domain.InstallmentPlan{
		ID:               "plan-test",
		PrincipalCents:   money.FromInt(1200000).Cents(),
		TermMonths:       3,
		DownPaymentCents: money.FromInt(200000).Cents(),
		TotalDueCents:    sched.TotalDue.Cents(),
		AmountPaidCents:  money.FromInt(200000).Cents(),
		Status:           domain.PlanStatusActive,
	}
	return plan, sched.Entries
}

func TestAllocateOldestDueFirst(t *testing.T) {
	plan, entries := testPlan(t)
	paidAt := date(2026, time.February, 10)

	alloc, err := Allocate(plan, entries, money.FromCents(37333333), paidAt)
	require.NoError(t, err)
	require.Equal(t, int64(37333333), alloc.Applied.Cents())
	require.True(t, alloc.Leftover.IsZero())

	require.True(t, alloc.Entries[0].Paid)
	require.NotNil(t, alloc.Entries[0].PaidAt)
	require.Equal(t, int64(37333333), alloc.Entries[0].AmountPaidCents)
	require.False(t, alloc.Entries[1].Paid)
	require.Zero(t, alloc.Entries[1].AmountPaidCents)
	require.False(t, alloc.Entries[2].Paid)
}

func TestAllocateSpansMultipleEntries(t *testing.T) {
	plan, entries := testPlan(t)

	alloc, err := Allocate(plan, entries, money.FromCents(50000000), date(2026, time.February, 10))
	require.NoError(t, err)

	require.True(t, alloc.Entries[0].Paid)
	require.Equal(t, int64(37333333), alloc.Entries[0].AmountPaidCents)
	require.False(t, alloc.Entries[1].Paid)
	require.Equal(t, int64(12666667), alloc.Entries[1].AmountPaidCents)
	require.Zero(t, alloc.Entries[2].AmountPaidCents)
}

func TestAllocateToleranceSettlesDust(t *testing.T) {
	plan, entries := testPlan(t)

	// One cent short of the first installment: the residual is within
	// tolerance, so the entry settles with amount_paid forced to the due
	// amount exactly.
	alloc, err := Allocate(plan, entries, money.FromCents(37333332), date(2026, time.February, 10))
	require.NoError(t, err)
	require.True(t, alloc.Entries[0].Paid)
	require.Equal(t, int64(37333333), alloc.Entries[0].AmountPaidCents)
}

func TestAllocateSkipsSettledEntries(t *testing.T) {
	plan, entries := testPlan(t)
	plan.AmountPaidCents += 37333333
	entries[0].AmountPaidCents = 37333333
	entries[0].Paid = true

	alloc, err := Allocate(plan, entries, money.FromCents(1000000), date(2026, time.March, 10))
	require.NoError(t, err)
	require.Equal(t, int64(37333333), alloc.Entries[0].AmountPaidCents)
	require.Equal(t, int64(1000000), alloc.Entries[1].AmountPaidCents)
}

func TestAllocateRejectsExcessPayment(t *testing.T) {
	plan, entries := testPlan(t)

	// Remaining is 1,120,000; 2,000,000 must be rejected, not clamped.
	_, err := Allocate(plan, entries, money.FromInt(2000000), date(2026, time.February, 10))
	require.ErrorIs(t, err, ErrExcessPayment)

	// One cent over remaining is still an excess payment.
	_, err = Allocate(plan, entries, money.FromCents(112000001), date(2026, time.February, 10))
	require.ErrorIs(t, err, ErrExcessPayment)

	// Exactly the remaining balance settles every entry.
	alloc, err := Allocate(plan, entries, money.FromCents(112000000), date(2026, time.February, 10))
	require.NoError(t, err)
	for _, entry := range alloc.Entries {
		require.True(t, entry.Paid)
	}
	require.True(t, alloc.Leftover.IsZero())
}

func TestAllocateRejectsNonPositive(t *testing.T) {
	plan, entries := testPlan(t)

	_, err := Allocate(plan, entries, money.Zero(), date(2026, time.February, 10))
	require.ErrorIs(t, err, ErrInvalidPayment)

	_, err = Allocate(plan, entries, money.FromCents(-100), date(2026, time.February, 10))
	require.ErrorIs(t, err, ErrInvalidPayment)
}

func TestAllocateDoesNotMutateInput(t *testing.T) {
	plan, entries := testPlan(t)

	_, err := Allocate(plan, entries, money.FromCents(37333333), date(2026, time.February, 10))
	require.NoError(t, err)

	for _, entry := range entries {
		require.False(t, entry.Paid)
		require.Zero(t, entry.AmountPaidCents)
	}
}
