package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	CreateRun(ctx context.Context, db *gorm.DB, run *SettlementRun) error
	FinishRun(ctx context.Context, db *gorm.DB, run *SettlementRun) error
	GetRun(ctx context.Context, db *gorm.DB, id string) (*SettlementRun, error)
	LatestRun(ctx context.Context, db *gorm.DB, month time.Time, statuses []RunStatus) (*SettlementRun, error)
	InsertFlags(ctx context.Context, db *gorm.DB, flags []*SettlementFlag) error
	ListFlags(ctx context.Context, db *gorm.DB, runID string) ([]SettlementFlag, error)
}
