package domain

import "time"

// All business dates (booking, arrival, as-of, stay) are calendar days carried
// as time.Time pinned to midnight UTC. Midnight() is applied at every parse
// boundary so equality and Before/After behave as day comparisons.

const DateLayout = "2006-01-02"

func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string { return t.Format(DateLayout) }

func AddDays(t time.Time, n int) time.Time { return t.AddDate(0, 0, n) }

// DaysBetween returns b-a in whole days; negative when b precedes a.
func DaysBetween(a, b time.Time) int {
	return int(Midnight(b).Sub(Midnight(a)) / (24 * time.Hour))
}

// SameOrBefore reports a <= b at day granularity.
func SameOrBefore(a, b time.Time) bool { return !Midnight(a).After(Midnight(b)) }

// Clock supplies "now" so job timestamps and decision times are reproducible
// in tests (no wall-clock defaults inside services).
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
