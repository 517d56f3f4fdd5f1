package proration

import "errors"

var (
	ErrNegativeAmount    = errors.New("negative_amount")
	ErrInvalidInterval   = errors.New("invalid_service_interval")
	ErrDurationMismatch  = errors.New("duration_mismatch")
	ErrUnknownSourceType = errors.New("unknown_source_type")
	ErrNegativeFragment  = errors.New("negative_remainder_fragment")
	ErrSumMismatch       = errors.New("fragment_sum_mismatch")
)
