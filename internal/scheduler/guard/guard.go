package guard

import (
	"errors"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
)

var (
	ErrMonthNotClosed  = errors.New("settlement_month_not_closed")
	ErrMonthInGrace    = errors.New("settlement_month_in_grace_period")
	ErrMonthNotStarted = errors.New("settlement_month_not_started")
)

// EnsureMonthCanClose reports whether month is over and late events have had
// grace to arrive.
func EnsureMonthCanClose(month calendar.Month, now time.Time, grace time.Duration) error {
	if now.Before(month.End()) {
		return ErrMonthNotClosed
	}
	if now.Before(month.End().Add(grace)) {
		return ErrMonthInGrace
	}
	return nil
}

// EnsureMonthOpen reports whether month is the one in progress at now.
func EnsureMonthOpen(month calendar.Month, now time.Time) error {
	if now.Before(month.Start()) {
		return ErrMonthNotStarted
	}
	if !now.Before(month.End()) {
		return ErrMonthNotClosed
	}
	return nil
}
