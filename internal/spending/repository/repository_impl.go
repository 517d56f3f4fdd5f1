package repository

import (
	"context"
	"time"

	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/spending/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var fragmentValueColumns = []string{
	"user_id",
	"novel_id",
	"chapter_id",
	"amount",
	"currency",
	"overlap_seconds",
	"overlap_days",
	"spend_time",
}

// UpsertFragments keeps the existing id and created_at on conflict so a
// rerun over unchanged input leaves rows untouched.
func (r *repo) UpsertFragments(ctx context.Context, db *gorm.DB, fragments []*domain.SpendingFragment) error {
	if len(fragments) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "source_type"},
				{Name: "source_id"},
				{Name: "settlement_month"},
			},
			DoUpdates: clause.AssignmentColumns(fragmentValueColumns),
		}).
		Create(&fragments).Error
}

func (r *repo) DeleteSourceExcept(ctx context.Context, db *gorm.DB, key paymentdomain.SourceKey, keep []time.Time) (int64, error) {
	stmt := db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", key.SourceType, key.SourceID)
	if len(keep) > 0 {
		stmt = stmt.Where("settlement_month NOT IN ?", keep)
	}
	res := stmt.Delete(&domain.SpendingFragment{})
	return res.RowsAffected, res.Error
}

func (r *repo) ListBySource(ctx context.Context, db *gorm.DB, key paymentdomain.SourceKey) ([]domain.SpendingFragment, error) {
	var items []domain.SpendingFragment
	err := db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", key.SourceType, key.SourceID).
		Order("settlement_month ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByNovelMonth(ctx context.Context, db *gorm.DB, novelID int64, month time.Time) ([]domain.SpendingFragment, error) {
	var items []domain.SpendingFragment
	err := db.WithContext(ctx).
		Where("novel_id = ? AND settlement_month = ?", novelID, month).
		Order("source_type ASC, source_id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByNovelsMonth(ctx context.Context, db *gorm.DB, novelIDs []int64, month time.Time) ([]domain.SpendingFragment, error) {
	if len(novelIDs) == 0 {
		return nil, nil
	}
	var items []domain.SpendingFragment
	err := db.WithContext(ctx).
		Where("novel_id IN ? AND settlement_month = ?", novelIDs, month).
		Order("novel_id ASC, source_type ASC, source_id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) SourcesInMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]paymentdomain.SourceKey, error) {
	var rows []struct {
		SourceType paymentdomain.SourceType
		SourceID   int64
	}
	err := db.WithContext(ctx).
		Model(&domain.SpendingFragment{}).
		Select("source_type, source_id").
		Where("settlement_month = ?", month).
		Order("source_type ASC, source_id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	keys := make([]paymentdomain.SourceKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, paymentdomain.SourceKey{SourceType: row.SourceType, SourceID: row.SourceID})
	}
	return keys, nil
}

func (r *repo) NovelsInMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.SpendingFragment{}).
		Distinct("novel_id").
		Where("settlement_month = ?", month).
		Order("novel_id ASC").
		Pluck("novel_id", &ids).Error
	return ids, err
}
