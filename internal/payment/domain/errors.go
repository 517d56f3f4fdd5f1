package domain

import "errors"

var (
	ErrInvalidSourceType  = errors.New("invalid_source_type")
	ErrInvalidSourceID    = errors.New("invalid_source_id")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrMissingReference   = errors.New("missing_reference")
	ErrInvalidServiceSpan = errors.New("invalid_service_span")
	ErrMissingKarmaRate   = errors.New("missing_karma_rate")
)
