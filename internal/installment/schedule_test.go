package installment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cicilanpos/backend/internal/money"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGenerateLastPeriodAbsorbsResidue(t *testing.T) {
	sched, err := Generate(Terms{
		Principal:   money.FromInt(1200000),
		RatePct:     10,
		TermMonths:  3,
		DownPayment: money.FromInt(200000),
	}, date(2026, time.January, 15))
	require.NoError(t, err)

	require.Equal(t, int64(132000000), sched.TotalDue.Cents())
	require.Len(t, sched.Entries, 3)

	require.Equal(t, int64(37333333), sched.Entries[0].AmountDueCents)
	require.Equal(t, int64(37333333), sched.Entries[1].AmountDueCents)
	require.Equal(t, int64(37333334), sched.Entries[2].AmountDueCents)

	var sum int64
	for _, entry := range sched.Entries {
		sum += entry.AmountDueCents
	}
	// financed amount = total due minus down payment, to the cent
	require.Equal(t, int64(112000000), sum)

	require.Equal(t, date(2026, time.February, 15), sched.Entries[0].DueDate)
	require.Equal(t, date(2026, time.March, 15), sched.Entries[1].DueDate)
	require.Equal(t, date(2026, time.April, 15), sched.Entries[2].DueDate)
}

func TestGenerateClampsMonthEndDueDates(t *testing.T) {
	sched, err := Generate(Terms{
		Principal:  money.FromInt(300),
		TermMonths: 3,
	}, date(2026, time.January, 31))
	require.NoError(t, err)
	require.Len(t, sched.Entries, 3)

	// 2026 is not a leap year; the 31st clamps to each month's last day.
	require.Equal(t, date(2026, time.February, 28), sched.Entries[0].DueDate)
	require.Equal(t, date(2026, time.March, 31), sched.Entries[1].DueDate)
	require.Equal(t, date(2026, time.April, 30), sched.Entries[2].DueDate)
}

func TestGenerateLeapYearClamp(t *testing.T) {
	sched, err := Generate(Terms{
		Principal:  money.FromInt(100),
		TermMonths: 1,
	}, date(2028, time.January, 30))
	require.NoError(t, err)
	require.Len(t, sched.Entries, 1)
	require.Equal(t, date(2028, time.February, 29), sched.Entries[0].DueDate)
}

func TestGenerateZeroRate(t *testing.T) {
	sched, err := Generate(Terms{
		Principal:  money.FromInt(900),
		TermMonths: 3,
	}, date(2026, time.June, 1))
	require.NoError(t, err)
	require.Equal(t, int64(90000), sched.TotalDue.Cents())
	for _, entry := range sched.Entries {
		require.Equal(t, int64(30000), entry.AmountDueCents)
	}
}

func TestGenerateDownPaymentCoversTotal(t *testing.T) {
	sched, err := Generate(Terms{
		Principal:   money.FromInt(300),
		TermMonths:  6,
		DownPayment: money.FromInt(300),
	}, date(2026, time.June, 1))
	require.NoError(t, err)
	require.Empty(t, sched.Entries)
	require.Equal(t, int64(30000), sched.TotalDue.Cents())
}

func TestGenerateTinyFinancedAmount(t *testing.T) {
	// 0.05 over 10 periods: the nominal per-period rounds to 0.01, so
	// only five non-zero entries come out and they sum exactly.
	sched, err := Generate(Terms{
		Principal:  money.FromCents(5),
		TermMonths: 10,
	}, date(2026, time.June, 1))
	require.NoError(t, err)
	require.Len(t, sched.Entries, 5)

	var sum int64
	for _, entry := range sched.Entries {
		require.Equal(t, int64(1), entry.AmountDueCents)
		sum += entry.AmountDueCents
	}
	require.Equal(t, int64(5), sum)
}

func TestGenerateRejectsBadTerms(t *testing.T) {
	start := date(2026, time.June, 1)

	cases := []Terms{
		{Principal: money.Zero(), TermMonths: 3},
		{Principal: money.FromInt(100), TermMonths: 0},
		{Principal: money.FromInt(100), TermMonths: 3, RatePct: -1},
		{Principal: money.FromInt(100), TermMonths: 3, RatePct: 101},
		{Principal: money.FromInt(100), TermMonths: 3, DownPayment: money.FromCents(-1)},
		{Principal: money.FromInt(100), TermMonths: 3, DownPayment: money.FromInt(200)},
	}
	for i, terms := range cases {
		_, err := Generate(terms, start)
		require.ErrorIs(t, err, ErrInvalidTerms, "case %d", i)
	}
}
