package repository

import (
	"context"
	"errors"
	"time"

	"github.com/kongfuworld/settlement/internal/settlement/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateRun(ctx context.Context, db *gorm.DB, run *domain.SettlementRun) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) FinishRun(ctx context.Context, db *gorm.DB, run *domain.SettlementRun) error {
	return db.WithContext(ctx).
		Model(&domain.SettlementRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":            run.Status,
			"events_selected":   run.EventsSelected,
			"events_settled":    run.EventsSettled,
			"events_removed":    run.EventsRemoved,
			"events_failed":     run.EventsFailed,
			"fragments_written": run.FragmentsWritten,
			"authors_settled":   run.AuthorsSettled,
			"authors_failed":    run.AuthorsFailed,
			"novels_allocated":  run.NovelsAllocated,
			"novels_failed":     run.NovelsFailed,
			"flag_count":        run.FlagCount,
			"finished_at":       run.FinishedAt,
			"last_error":        run.LastError,
		}).Error
}

func (r *repo) GetRun(ctx context.Context, db *gorm.DB, id string) (*domain.SettlementRun, error) {
	var run domain.SettlementRun
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *repo) LatestRun(ctx context.Context, db *gorm.DB, month time.Time, statuses []domain.RunStatus) (*domain.SettlementRun, error) {
	var run domain.SettlementRun
	stmt := db.WithContext(ctx).Where("month = ?", month)
	if len(statuses) > 0 {
		stmt = stmt.Where("status IN ?", statuses)
	}
	err := stmt.Order("started_at DESC, id DESC").First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *repo) InsertFlags(ctx context.Context, db *gorm.DB, flags []*domain.SettlementFlag) error {
	if len(flags) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(flags, 200).Error
}

func (r *repo) ListFlags(ctx context.Context, db *gorm.DB, runID string) ([]domain.SettlementFlag, error) {
	var items []domain.SettlementFlag
	err := db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&items).Error
	return items, err
}
