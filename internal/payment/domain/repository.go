package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindBySource(ctx context.Context, db *gorm.DB, key SourceKey) (*PaymentEvent, error)
	FindBySources(ctx context.Context, db *gorm.DB, keys []SourceKey) ([]PaymentEvent, error)
	InsertEvent(ctx context.Context, db *gorm.DB, event *PaymentEvent) (bool, error)
	// CandidatesForMonth over-selects events that may touch [start, end).
	CandidatesForMonth(ctx context.Context, db *gorm.DB, start, end time.Time) ([]PaymentEvent, error)
}
