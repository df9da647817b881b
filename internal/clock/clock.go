// Package clock abstracts the current time so overdue detection and
// schedule start dates are deterministic in tests. Components never read
// time.Now directly for business decisions.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

// System reads the real wall clock in UTC.
type System struct{}

func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always reports the same instant.
type Fixed struct {
	At time.Time
}

func (f Fixed) Now() time.Time {
	return f.At
}
