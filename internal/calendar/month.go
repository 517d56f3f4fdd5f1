package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a UTC calendar month used as the unit of revenue recognition.
type Month struct {
	Year  int
	Month time.Month
}

// MonthOf returns the UTC calendar month containing t.
func MonthOf(t time.Time) Month {
	u := t.UTC()
	return Month{Year: u.Year(), Month: u.Month()}
}

// ParseMonth parses a month in YYYY-MM form.
func ParseMonth(value string) (Month, error) {
	value = strings.TrimSpace(value)
	parts := strings.Split(value, "-")
	if len(parts) != 2 || len(parts[0]) != 4 || len(parts[1]) != 2 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, value)
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, value)
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, value)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

func (m Month) IsZero() bool {
	return m.Year == 0 && m.Month == 0
}

// Start is the first instant of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the first instant of the following month. Months are half-open.
func (m Month) End() time.Time {
	return time.Date(m.Year, m.Month+1, 1, 0, 0, 0, 0, time.UTC)
}

func (m Month) Interval() Interval {
	return Interval{Start: m.Start(), End: m.End()}
}

func (m Month) Next() Month {
	return MonthOf(m.End())
}

func (m Month) Prev() Month {
	return MonthOf(m.Start().Add(-time.Nanosecond))
}

func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m Month) After(other Month) bool {
	return other.Before(m)
}

func (m Month) Equal(other Month) bool {
	return m.Year == other.Year && m.Month == other.Month
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Range lists every month from..to inclusive in ascending order.
func Range(from, to Month) ([]Month, error) {
	if from.IsZero() || to.IsZero() {
		return nil, ErrInvalidMonth
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	var months []Month
	for m := from; !m.After(to); m = m.Next() {
		months = append(months, m)
	}
	return months, nil
}

// MonthsTouched lists every month that shares a non-empty overlap with iv.
// An empty interval touches only the month containing its start.
func MonthsTouched(iv Interval) []Month {
	if iv.Empty() {
		return []Month{MonthOf(iv.Start)}
	}
	var months []Month
	for m := MonthOf(iv.Start); m.Start().Before(iv.End); m = m.Next() {
		months = append(months, m)
	}
	return months
}
