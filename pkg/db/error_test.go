package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.True(t, IsDuplicateKeyErr(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)))
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: spending_fragments.source_type")))
	assert.True(t, IsDuplicateKeyErr(errors.New("Error 1062: Duplicate entry")))
	assert.False(t, IsDuplicateKeyErr(errors.New("connection refused")))
}

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(Config{Type: kind, Name: "settlement"})
		assert.NoError(t, err, kind)
		assert.NotNil(t, d, kind)
	}
	_, err := Dialect(Config{Type: "oracle"})
	assert.Error(t, err)
}
