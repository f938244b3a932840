package vacation

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day normalized to midnight (no time-of-day component)
// =============================================================================

// Date is a calendar day. The time-of-day is always normalized to midnight
// UTC, so comparisons and storage are unambiguous.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return Date{Time: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }

func (d Date) String() string { return d.Time.Format("2006-01-02") }

// =============================================================================
// DAY COUNTING AND RANGES
// =============================================================================

// CalculateVacationDays returns the inclusive day count between two dates:
// a single-day request is 1 day, Mon-Fri is 5. Pure function, no I/O.
func CalculateVacationDays(start, end Date) int {
	return int(end.Time.Sub(start.Time).Hours()/24) + 1
}

// Overlaps reports whether the inclusive ranges [aStart, aEnd] and
// [bStart, bEnd] intersect.
func Overlaps(aStart, aEnd, bStart, bEnd Date) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}

// WithinYear reports whether [start, end] falls entirely inside a calendar
// year. Used when summing a year's consumed days.
func WithinYear(start, end Date, year int) bool {
	return !start.Before(StartOfYear(year)) && !end.After(EndOfYear(year))
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }
