package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// derivedColumns are the only columns a recompute may touch; payout
// bookkeeping stays with the payout collaborator.
var derivedColumns = []string{
	"base_income",
	"referral_income",
	"total_income",
	"novel_breakdown",
	"currency",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, row *domain.AuthorMonthlyIncome) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "month"}},
			DoUpdates: clause.AssignmentColumns(derivedColumns),
		}).
		Create(row).Error
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID int64, month time.Time) (*domain.AuthorMonthlyIncome, error) {
	var row domain.AuthorMonthlyIncome
	err := db.WithContext(ctx).
		Where("user_id = ? AND month = ?", userID, month).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repo) ListByMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]domain.AuthorMonthlyIncome, error) {
	var items []domain.AuthorMonthlyIncome
	err := db.WithContext(ctx).
		Where("month = ?", month).
		Order("user_id ASC").
		Find(&items).Error
	return items, err
}

func (r *repo) UsersWithRows(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.AuthorMonthlyIncome{}).
		Where("month = ?", month).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}

func (r *repo) SumReferral(ctx context.Context, db *gorm.DB, userID int64, month time.Time) (decimal.Decimal, error) {
	var items []domain.ReferralIncome
	err := db.WithContext(ctx).
		Where("user_id = ? AND month = ?", userID, month).
		Find(&items).Error
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Amount)
	}
	return sum, nil
}

func (r *repo) UsersWithReferral(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).
		Model(&domain.ReferralIncome{}).
		Distinct("user_id").
		Where("month = ?", month).
		Order("user_id ASC").
		Pluck("user_id", &ids).Error
	return ids, err
}
