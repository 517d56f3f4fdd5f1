package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const secondsPerDay = 86400

// Interval is a half-open [Start, End) range of UTC instants.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval normalizes both bounds to UTC and rejects inverted ranges.
func NewInterval(start, end time.Time) (Interval, error) {
	if start.IsZero() || end.IsZero() {
		return Interval{}, ErrMissingBound
	}
	start = start.UTC()
	end = end.UTC()
	if end.Before(start) {
		return Interval{}, fmt.Errorf("%w: end %s before start %s", ErrInvertedInterval,
			end.Format(time.RFC3339Nano), start.Format(time.RFC3339Nano))
	}
	return Interval{Start: start, End: end}, nil
}

func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

func (iv Interval) Empty() bool {
	return !iv.End.After(iv.Start)
}

// Overlap returns max(0, min(a.End, b.End) - max(a.Start, b.Start)).
func Overlap(a, b Interval) time.Duration {
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Days converts a duration into a fractional day count.
func Days(d time.Duration) decimal.Decimal {
	return decimal.NewFromInt(d.Nanoseconds()).
		Div(decimal.NewFromInt(int64(time.Second))).
		Div(decimal.NewFromInt(secondsPerDay))
}

// ParseInstant parses an RFC3339 timestamp. Values without an explicit
// offset are rejected rather than interpreted in any local zone.
func ParseInstant(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, ErrMissingBound
	}
	if !hasExplicitOffset(value) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrAmbiguousInstant, value)
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrAmbiguousInstant, value)
	}
	return t.UTC(), nil
}

func hasExplicitOffset(value string) bool {
	idx := strings.IndexByte(value, 'T')
	if idx < 0 {
		return false
	}
	clock := value[idx+1:]
	if strings.HasSuffix(clock, "Z") || strings.HasSuffix(clock, "z") {
		return true
	}
	return strings.ContainsAny(clock, "+-")
}
