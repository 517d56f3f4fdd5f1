package domain

import "errors"

var (
	ErrInvalidAuthor  = errors.New("invalid_author")
	ErrIncomeNotFound = errors.New("author_income_not_found")
	ErrTotalMismatch  = errors.New("author_total_mismatch")
)
