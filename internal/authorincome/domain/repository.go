package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Upsert(ctx context.Context, db *gorm.DB, row *AuthorMonthlyIncome) error
	Get(ctx context.Context, db *gorm.DB, userID int64, month time.Time) (*AuthorMonthlyIncome, error)
	ListByMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]AuthorMonthlyIncome, error)
	UsersWithRows(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error)
	SumReferral(ctx context.Context, db *gorm.DB, userID int64, month time.Time) (decimal.Decimal, error)
	UsersWithReferral(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error)
}
