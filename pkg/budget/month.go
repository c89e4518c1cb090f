package budget

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// Month is a calendar month of a given year. The zero value is not a valid
// month and is used to mean "unset".
type Month struct {
	Year  int
	Month time.Month
}

func NewMonth(year int, month time.Month) (Month, error) {
	if month < time.January || month > time.December {
		return Month{}, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	return Month{Year: year, Month: month}, nil
}

// MonthOf returns the calendar month containing t, in t's location.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses a month in YYYY-MM form.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, fmt.Errorf("invalid month %q, expected YYYY-MM: %w", s, err)
	}
	return MonthOf(t), nil
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

func (m Month) ordinal() int {
	return m.Year*12 + int(m.Month) - 1
}

func monthFromOrdinal(n int) Month {
	year, month := n/12, n%12
	if month < 0 {
		year--
		month += 12
	}
	return Month{Year: year, Month: time.Month(month + 1)}
}

// Add returns the month n months after m. n may be negative.
func (m Month) Add(n int) Month {
	return monthFromOrdinal(m.ordinal() + n)
}

// Sub returns the number of months between o and m.
func (m Month) Sub(o Month) int {
	return m.ordinal() - o.ordinal()
}

func (m Month) Before(o Month) bool { return m.ordinal() < o.ordinal() }

func (m Month) After(o Month) bool { return m.ordinal() > o.ordinal() }

func (m Month) Compare(o Month) int {
	switch {
	case m.Before(o):
		return -1
	case m.After(o):
		return 1
	}
	return 0
}

// Start returns the first instant of the month in loc.
func (m Month) Start(loc *time.Location) time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, loc)
}

// End returns the last instant of the month in loc.
func (m Month) End(loc *time.Location) time.Time {
	return m.Add(1).Start(loc).Add(-time.Nanosecond)
}

// String formats the month as YYYY-MM.
func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Long formats the month for display, e.g. "January 2025".
func (m Month) Long() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func maxMonth(a, b Month) Month {
	if a.After(b) {
		return a
	}
	return b
}
