package domain

import "errors"

var (
	ErrNoFragments   = errors.New("no_fragments")
	ErrInvalidSource = errors.New("invalid_source")
	ErrSumInvariant  = errors.New("fragment_sum_invariant_violated")
)
