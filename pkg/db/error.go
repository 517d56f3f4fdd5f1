package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := err.Error()
	// postgres 23505, mysql 1062, sqlite 2067
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
