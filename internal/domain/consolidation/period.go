package consolidation

import (
	"fmt"
	"time"
)

// Period is a calendar month identified by its "YYYY-MM" key. All interval
// arithmetic treats the period as the half-open range [Start, End).
type Period struct {
	year  int
	month time.Month
}

// ParsePeriod parses a "YYYY-MM" key into a Period.
func ParsePeriod(key string) (Period, error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q: %w", key, err)
	}
	return Period{year: t.Year(), month: t.Month()}, nil
}

// MustParsePeriod parses a period key and panics on failure. Test helper.
func MustParsePeriod(key string) Period {
	p, err := ParsePeriod(key)
	if err != nil {
		panic(err)
	}
	return p
}

// Key returns the canonical "YYYY-MM" representation.
func (p Period) Key() string {
	return fmt.Sprintf("%04d-%02d", p.year, int(p.month))
}

// Start returns the first instant of the period (UTC midnight on day 1).
func (p Period) Start() time.Time {
	return time.Date(p.year, p.month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the exclusive end of the period (start of the next month).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Days returns the number of days in the period.
func (p Period) Days() int {
	return int(p.End().Sub(p.Start()).Hours() / 24)
}

// LastDay returns the final calendar day of the period, used as the default
// FX rate date.
func (p Period) LastDay() time.Time {
	return p.End().AddDate(0, 0, -1)
}

// IsZero reports whether the period is the zero value.
func (p Period) IsZero() bool {
	return p.year == 0
}

// String implements fmt.Stringer.
func (p Period) String() string {
	return p.Key()
}

// OverlapDays returns the number of whole days in the intersection of the
// period with the half-open interval [start, end). A nil end means the
// interval is open-ended.
func (p Period) OverlapDays(start time.Time, end *time.Time) int {
	lo := p.Start()
	if start.After(lo) {
		lo = start
	}
	hi := p.End()
	if end != nil && end.Before(hi) {
		hi = *end
	}
	if !hi.After(lo) {
		return 0
	}
	return int(hi.Sub(lo).Hours() / 24)
}
