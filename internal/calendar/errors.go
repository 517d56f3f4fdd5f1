package calendar

import "errors"

var (
	ErrInvalidMonth     = errors.New("invalid_month")
	ErrInvalidRange     = errors.New("invalid_month_range")
	ErrMissingBound     = errors.New("missing_interval_bound")
	ErrInvertedInterval = errors.New("inverted_interval")
	ErrAmbiguousInstant = errors.New("ambiguous_instant")
)
