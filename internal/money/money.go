// Package money provides fixed-point currency arithmetic for the
// installment engine. Amounts carry two fractional digits and every
// operation that can produce more precision rounds half-up back to that
// scale, so schedules and allocations never accumulate float drift.
package money

import (
	"github.com/shopspring/decimal"
)

// Tolerance is the smallest currency unit (0.01). Differences at or
// below it are rounding noise, never a real balance.
var Tolerance = decimal.New(1, -2)

// Money is an immutable currency amount with scale 2. The zero value is
// a valid zero amount. Amounts handled by the engine are non-negative.
type Money struct {
	dec decimal.Decimal
}

func Zero() Money {
	return Money{}
}

func FromCents(cents int64) Money {
	return Money{dec: decimal.New(cents, -2)}
}

func FromInt(units int64) Money {
	return Money{dec: decimal.NewFromInt(units)}
}

// FromString parses a decimal string such as "373333.33". The parsed
// value is rounded to scale 2.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{dec: round(d)}, nil
}

// Cents returns the amount as integer cents, the representation the
// storage layer persists.
func (m Money) Cents() int64 {
	return m.dec.Shift(2).Round(0).IntPart()
}

func (m Money) Add(other Money) Money {
	return Money{dec: m.dec.Add(other.dec)}
}

func (m Money) Sub(other Money) Money {
	return Money{dec: m.dec.Sub(other.dec)}
}

// MulPercent multiplies by pct/100, rounding half-up to scale 2. Used
// for flat interest computation.
func (m Money) MulPercent(pct float64) Money {
	rate := decimal.NewFromFloat(pct).Div(decimal.NewFromInt(100))
	return Money{dec: round(m.dec.Mul(rate))}
}

// DivInt divides the amount into n equal parts, rounding half-up to
// scale 2. The caller is responsible for absorbing the residue.
func (m Money) DivInt(n int64) Money {
	return Money{dec: round(m.dec.Div(decimal.NewFromInt(n)))}
}

func (m Money) Cmp(other Money) int {
	return m.dec.Cmp(other.dec)
}

func (m Money) Equal(other Money) bool {
	return m.dec.Equal(other.dec)
}

func (m Money) LessThan(other Money) bool {
	return m.dec.LessThan(other.dec)
}

func (m Money) GreaterThan(other Money) bool {
	return m.dec.GreaterThan(other.dec)
}

func (m Money) IsZero() bool {
	return m.dec.IsZero()
}

func (m Money) IsNegative() bool {
	return m.dec.IsNegative()
}

func Min(a, b Money) Money {
	if a.LessThan(b) {
		return a
	}
	return b
}

// WithinTolerance reports whether the two amounts differ by at most one
// minimal currency unit.
func (m Money) WithinTolerance(other Money) bool {
	return m.dec.Sub(other.dec).Abs().LessThanOrEqual(Tolerance)
}

func (m Money) String() string {
	return m.dec.StringFixed(2)
}

// round is the single rounding rule of the engine: half-up to two
// fractional digits. decimal.Round rounds half away from zero, which is
// half-up for the non-negative amounts handled here.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
