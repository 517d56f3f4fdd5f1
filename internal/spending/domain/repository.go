package domain

import (
	"context"
	"time"

	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"gorm.io/gorm"
)

type Repository interface {
	UpsertFragments(ctx context.Context, db *gorm.DB, fragments []*SpendingFragment) error
	DeleteSourceExcept(ctx context.Context, db *gorm.DB, key paymentdomain.SourceKey, keep []time.Time) (int64, error)
	ListBySource(ctx context.Context, db *gorm.DB, key paymentdomain.SourceKey) ([]SpendingFragment, error)
	ListByNovelMonth(ctx context.Context, db *gorm.DB, novelID int64, month time.Time) ([]SpendingFragment, error)
	ListByNovelsMonth(ctx context.Context, db *gorm.DB, novelIDs []int64, month time.Time) ([]SpendingFragment, error)
	SourcesInMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]paymentdomain.SourceKey, error)
	NovelsInMonth(ctx context.Context, db *gorm.DB, month time.Time) ([]int64, error)
}
