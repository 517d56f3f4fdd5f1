package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kongfuworld/settlement/internal/payment/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindBySource(ctx context.Context, db *gorm.DB, key domain.SourceKey) (*domain.PaymentEvent, error) {
	var item domain.PaymentEvent
	err := db.WithContext(ctx).
		Where("source_type = ? AND source_id = ?", key.SourceType, key.SourceID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *repo) FindBySources(ctx context.Context, db *gorm.DB, keys []domain.SourceKey) ([]domain.PaymentEvent, error) {
	byType := make(map[domain.SourceType][]int64, 2)
	for _, k := range keys {
		byType[k.SourceType] = append(byType[k.SourceType], k.SourceID)
	}
	var out []domain.PaymentEvent
	for _, sourceType := range []domain.SourceType{domain.SourceTypeUnlock, domain.SourceTypeSubscription} {
		ids := byType[sourceType]
		if len(ids) == 0 {
			continue
		}
		var items []domain.PaymentEvent
		err := db.WithContext(ctx).
			Where("source_type = ? AND source_id IN ?", sourceType, ids).
			Order("source_id ASC").
			Find(&items).Error
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

// InsertEvent stores a new event and reports false when the source is
// already known.
func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.PaymentEvent) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_type"}, {Name: "source_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CandidatesForMonth(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.PaymentEvent, error) {
	group := db.Session(&gorm.Session{NewDB: true})
	var items []domain.PaymentEvent
	err := db.WithContext(ctx).
		Where(
			group.Where("source_type = ? AND purchased_at >= ? AND purchased_at < ?", domain.SourceTypeUnlock, start, end).
				Or("source_type = ? AND service_start < ? AND service_end > ?", domain.SourceTypeSubscription, end, start).
				Or("source_type = ? AND service_start >= ? AND service_start < ?", domain.SourceTypeSubscription, start, end),
		).
		Order("source_type ASC, source_id ASC").
		Find(&items).Error
	return items, err
}
