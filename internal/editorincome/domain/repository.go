package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, rows []*EditorMonthlyIncome) error
	DeleteNovelMonthExcept(ctx context.Context, db *gorm.DB, novelID int64, month time.Time, keep []RowKey) (int64, error)
	ListByNovelMonth(ctx context.Context, db *gorm.DB, novelID int64, month time.Time) ([]EditorMonthlyIncome, error)
	ListByEditorMonth(ctx context.Context, db *gorm.DB, editorID int64, month time.Time) ([]EditorMonthlyIncome, error)
}
