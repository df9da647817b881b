package installment

import (
	"time"

	"cicilanpos/backend/internal/domain"
	"cicilanpos/backend/internal/money"
)

// Terms are the validated inputs to schedule generation. Interest is a
// flat surcharge over the whole term (simple, not compound).
type Terms struct {
	Principal   money.Money
	RatePct     float64
	TermMonths  int
	DownPayment money.Money
}

// Schedule is the generated amortization plan. Entries carry due dates
// and amounts only; identifiers are assigned at persistence time.
type Schedule struct {
	TotalDue  money.Money
	PerPeriod money.Money
	Entries   []domain.ScheduleEntry
}

// Generate computes the total amount due and the per-period schedule.
//
// Every period except the last uses the rounded nominal amount; the
// last period absorbs the rounding residue so the schedule sums to the
// financed amount exactly. Due dates step by calendar month from start,
// with the day-of-month clamped to the last valid day of shorter months
// (the 31st falls on the last day of February). Entries whose computed
// amount is zero are omitted, which covers the degenerate case of a
// down payment equal to the total due.
func Generate(terms Terms, start time.Time) (Schedule, error) {
	if !terms.Principal.GreaterThan(money.Zero()) {
		return Schedule{}, ErrInvalidTerms
	}
	if terms.TermMonths < 1 {
		return Schedule{}, ErrInvalidTerms
	}
	if terms.RatePct < 0 || terms.RatePct > 100 {
		return Schedule{}, ErrInvalidTerms
	}
	if terms.DownPayment.IsNegative() {
		return Schedule{}, ErrInvalidTerms
	}

	interest := terms.Principal.MulPercent(terms.RatePct)
	totalDue := terms.Principal.Add(interest)
	financed := totalDue.Sub(terms.DownPayment)
	if financed.IsNegative() {
		return Schedule{}, ErrInvalidTerms
	}

	perPeriod := financed.DivInt(int64(terms.TermMonths))
	startDate := dateOnly(start)

	entries := make([]domain.ScheduleEntry, 0, terms.TermMonths)
	running := money.Zero()
	for period := 1; period <= terms.TermMonths; period++ {
		left := financed.Sub(running)
		amount := money.Min(perPeriod, left)
		if period == terms.TermMonths {
			amount = left
		}
		if !amount.GreaterThan(money.Zero()) {
			continue
		}
		entries = append(entries, domain.ScheduleEntry{
			DueDate:        addMonthsClamped(startDate, period),
			AmountDueCents: amount.Cents(),
		})
		running = running.Add(amount)
	}

	return Schedule{TotalDue: totalDue, PerPeriod: perPeriod, Entries: entries}, nil
}

// addMonthsClamped advances t by n calendar months. Unlike
// time.AddDate, an out-of-range day clamps to the month's last valid
// day instead of rolling into the next month, so a plan created on
// January 31 falls due on the last day of February.
func addMonthsClamped(t time.Time, n int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, 0, 0, 0, 0, t.Location())
}
