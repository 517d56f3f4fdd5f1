package domain

import "errors"

var (
	ErrInvalidInput   = errors.New("invalid_allocation_input")
	ErrExceedsGross   = errors.New("editor_income_exceeds_gross")
	ErrReconciliation = errors.New("editor_author_reconciliation_failed")
	ErrNegativeIncome = errors.New("negative_editor_income")
)
