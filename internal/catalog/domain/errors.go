package domain

import "errors"

var (
	ErrNovelNotFound   = errors.New("novel_not_found")
	ErrInvalidWorkload = errors.New("invalid_workload")
)
