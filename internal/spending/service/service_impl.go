package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/kongfuworld/settlement/internal/spending/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("spending.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) WriteEvent(ctx context.Context, req domain.WriteRequest) (*domain.WriteResult, error) {
	ev := req.Event
	if !ev.SourceType.Valid() || ev.SourceID <= 0 {
		return nil, domain.ErrInvalidSource
	}
	if len(req.Fragments) == 0 {
		return nil, domain.ErrNoFragments
	}
	if err := proration.VerifySum(req.Fragments, req.Amount, req.Epsilon); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSumInvariant, err)
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	rows := make([]*domain.SpendingFragment, 0, len(req.Fragments))
	keep := make([]time.Time, 0, len(req.Fragments))
	months := make([]calendar.Month, 0, len(req.Fragments))
	for _, f := range req.Fragments {
		rows = append(rows, &domain.SpendingFragment{
			ID:              s.genID.Generate(),
			SourceType:      ev.SourceType,
			SourceID:        ev.SourceID,
			SettlementMonth: f.Month.Start(),
			UserID:          ev.UserID,
			NovelID:         ev.NovelID,
			ChapterID:       ev.ChapterID,
			Amount:          f.Amount,
			Currency:        currency,
			OverlapSeconds:  f.OverlapSeconds,
			OverlapDays:     f.OverlapDays,
			SpendTime:       f.SpendTime.UTC(),
		})
		keep = append(keep, f.Month.Start())
		months = append(months, f.Month)
	}

	result := &domain.WriteResult{Written: len(rows), Months: months}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertFragments(ctx, tx, rows); err != nil {
			return err
		}
		removed, err := s.repo.DeleteSourceExcept(ctx, tx, ev.Key(), keep)
		if err != nil {
			return err
		}
		result.Removed = removed

		persisted, err := s.repo.ListBySource(ctx, tx, ev.Key())
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, row := range persisted {
			sum = sum.Add(row.Amount)
		}
		if sum.Sub(req.Amount).Abs().GreaterThan(req.Epsilon) {
			return fmt.Errorf("%w: %s %d persisted %s, expected %s",
				domain.ErrSumInvariant, ev.SourceType, ev.SourceID, sum, req.Amount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordFragments(ctx, string(ev.SourceType), len(rows))
	s.log.Debug("spending.fragments.written",
		zap.String("source_type", string(ev.SourceType)),
		zap.Int64("source_id", ev.SourceID),
		zap.Int("fragments", len(rows)),
		zap.Int64("removed", result.Removed),
	)
	return result, nil
}

// RemoveSource drops every fragment of an event that should no longer settle.
func (s *Service) RemoveSource(ctx context.Context, key paymentdomain.SourceKey) (int64, error) {
	return s.repo.DeleteSourceExcept(ctx, s.db, key, nil)
}

func (s *Service) ListBySource(ctx context.Context, key paymentdomain.SourceKey) ([]domain.SpendingFragment, error) {
	return s.repo.ListBySource(ctx, s.db, key)
}

func (s *Service) ListByNovelMonth(ctx context.Context, novelID int64, month calendar.Month) ([]domain.SpendingFragment, error) {
	return s.repo.ListByNovelMonth(ctx, s.db, novelID, month.Start())
}

func (s *Service) TotalsForNovels(ctx context.Context, novelIDs []int64, month calendar.Month) (map[int64]domain.NovelTotals, error) {
	rows, err := s.repo.ListByNovelsMonth(ctx, s.db, novelIDs, month.Start())
	if err != nil {
		return nil, err
	}
	totals := make(map[int64]domain.NovelTotals, len(novelIDs))
	for _, id := range novelIDs {
		totals[id] = domain.NovelTotals{NovelID: id, Unlock: decimal.Zero, Subscription: decimal.Zero}
	}
	for _, row := range rows {
		t := totals[row.NovelID]
		switch row.SourceType {
		case paymentdomain.SourceTypeUnlock:
			t.Unlock = t.Unlock.Add(row.Amount)
		default:
			t.Subscription = t.Subscription.Add(row.Amount)
		}
		totals[row.NovelID] = t
	}
	return totals, nil
}

func (s *Service) SourcesInMonth(ctx context.Context, month calendar.Month) ([]paymentdomain.SourceKey, error) {
	return s.repo.SourcesInMonth(ctx, s.db, month.Start())
}

func (s *Service) NovelsInMonth(ctx context.Context, month calendar.Month) ([]int64, error) {
	return s.repo.NovelsInMonth(ctx, s.db, month.Start())
}
