package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/editorincome/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var incomeValueColumns = []string{
	"source_type",
	"contract_id",
	"chapter_count_total",
	"chapter_count_editor",
	"gross_book_income",
	"contract_share_percent",
	"editor_share_percent",
	"editor_income",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, rows []*domain.EditorMonthlyIncome) error {
	if len(rows) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "editor_id"},
				{Name: "novel_id"},
				{Name: "month"},
				{Name: "role"},
			},
			DoUpdates: clause.AssignmentColumns(incomeValueColumns),
		}).
		Create(&rows).Error
}

// DeleteNovelMonthExcept removes rows of the (novel, month) set whose key is
// not in keep.
func (r *repo) DeleteNovelMonthExcept(ctx context.Context, db *gorm.DB, novelID int64, month time.Time, keep []domain.RowKey) (int64, error) {
	existing, err := r.ListByNovelMonth(ctx, db, novelID, month)
	if err != nil {
		return 0, err
	}
	kept := make(map[domain.RowKey]struct{}, len(keep))
	for _, k := range keep {
		kept[k] = struct{}{}
	}
	var stale []snowflake.ID
	for _, row := range existing {
		if _, ok := kept[row.Key()]; !ok {
			stale = append(stale, row.ID)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Where("id IN ?", stale).
		Delete(&domain.EditorMonthlyIncome{})
	return res.RowsAffected, res.Error
}

func (r *repo) ListByNovelMonth(ctx context.Context, db *gorm.DB, novelID int64, month time.Time) ([]domain.EditorMonthlyIncome, error) {
	var items []domain.EditorMonthlyIncome
	err := db.WithContext(ctx).
		Where("novel_id = ? AND month = ?", novelID, month).
		Order("role ASC, editor_id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByEditorMonth(ctx context.Context, db *gorm.DB, editorID int64, month time.Time) ([]domain.EditorMonthlyIncome, error) {
	var items []domain.EditorMonthlyIncome
	err := db.WithContext(ctx).
		Where("editor_id = ? AND month = ?", editorID, month).
		Order("novel_id ASC, role ASC").
		Find(&items).Error
	return items, err
}
