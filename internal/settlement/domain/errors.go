package domain

import "errors"

var (
	ErrInvalidMonth    = errors.New("invalid_settlement_month")
	ErrLegacyMonth     = errors.New("legacy_month_requires_allow_legacy")
	ErrFutureMonth     = errors.New("settlement_month_in_future")
	ErrRunNotFound     = errors.New("settlement_run_not_found")
	ErrInvalidBackfill = errors.New("invalid_backfill_range")
)
