package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/editorincome/domain"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
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
	Catalog    catalogdomain.Service
	Spending   spendingdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	catalog    catalogdomain.Service
	spending   spendingdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("editorincome.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		catalog:    p.Catalog,
		spending:   p.Spending,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Allocate(ctx context.Context, in domain.AllocationInput) (*domain.AllocationResult, error) {
	if in.NovelID <= 0 || in.Month.IsZero() || in.Resolution == nil ||
		in.Resolution.NovelID != in.NovelID || !in.Resolution.Month.Equal(in.Month) {
		return nil, domain.ErrInvalidInput
	}
	cfg := in.Config
	if err := config.ValidateSettlementConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	eps := cfg.EpsilonDecimal()

	fragments, err := s.spending.ListByNovelMonth(ctx, in.NovelID, in.Month)
	if err != nil {
		return nil, fmt.Errorf("load fragments: %w", err)
	}
	rev := collectRevenue(fragments)
	if rev.gross.Sub(in.AuthorSide).Abs().GreaterThan(eps) {
		return nil, fmt.Errorf("%w: novel %d month %s editor-side gross %s, author-side %s",
			domain.ErrReconciliation, in.NovelID, in.Month, rev.gross, in.AuthorSide)
	}

	var (
		assignments catalogdomain.Assignments
		workload    *catalogdomain.Workload
	)
	if len(in.Resolution.Resolved) > 0 {
		if len(rev.byChapter) > 0 {
			if assignments, err = s.catalog.Assignments(ctx, in.NovelID); err != nil {
				return nil, fmt.Errorf("load assignments: %w", err)
			}
		}
		if rev.subscription.IsPositive() {
			if workload, err = s.catalog.Workload(ctx, in.NovelID, in.Month); err != nil {
				return nil, fmt.Errorf("load workload: %w", err)
			}
		}
	} else {
		s.log.Info("editorincome.no_contract",
			zap.Int64("novel_id", in.NovelID),
			zap.String("month", in.Month.String()),
		)
	}

	alloc := allocate(in.Resolution, rev, assignments, workload)
	computed := alloc.rows(rev.gross, cfg.AmountScale)

	total := decimal.Zero
	for _, row := range computed {
		if row.EditorIncome.IsNegative() {
			return nil, fmt.Errorf("%w: editor %d role %s", domain.ErrNegativeIncome, row.EditorID, row.Role)
		}
		total = total.Add(row.EditorIncome)
	}
	if total.GreaterThan(rev.gross.Add(eps)) {
		return nil, fmt.Errorf("%w: novel %d month %s editor total %s, gross %s",
			domain.ErrExceedsGross, in.NovelID, in.Month, total, rev.gross)
	}

	rows := make([]*domain.EditorMonthlyIncome, 0, len(computed))
	keep := make([]domain.RowKey, 0, len(computed))
	for i := range computed {
		row := computed[i]
		row.ID = s.genID.Generate()
		row.NovelID = in.NovelID
		row.Month = in.Month.Start()
		rows = append(rows, &row)
		keep = append(keep, row.Key())
	}

	result := &domain.AllocationResult{
		NovelID:       in.NovelID,
		Month:         in.Month,
		Gross:         rev.gross,
		EditorTotal:   total,
		Normalized:    alloc.normalized,
		UnassignedUSD: rev.unassigned,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Upsert(ctx, tx, rows); err != nil {
			return err
		}
		removed, err := s.repo.DeleteNovelMonthExcept(ctx, tx, in.NovelID, in.Month.Start(), keep)
		if err != nil {
			return err
		}
		result.Removed = removed

		persisted, err := s.repo.ListByNovelMonth(ctx, tx, in.NovelID, in.Month.Start())
		if err != nil {
			return err
		}
		sum := decimal.Zero
		for _, row := range persisted {
			sum = sum.Add(row.EditorIncome)
		}
		if sum.GreaterThan(rev.gross.Add(eps)) {
			return fmt.Errorf("%w: novel %d month %s persisted %s, gross %s",
				domain.ErrExceedsGross, in.NovelID, in.Month, sum, rev.gross)
		}
		result.Rows = persisted
		return nil
	})
	if err != nil {
		return nil, err
	}

	for role, amount := range alloc.unrouted {
		s.log.Warn("editorincome.unlock_without_assignee",
			zap.Int64("novel_id", in.NovelID),
			zap.String("month", in.Month.String()),
			zap.String("role", string(role)),
			zap.String("amount", amount.String()),
		)
	}
	if alloc.normalized {
		s.log.Warn("editorincome.shares_normalized",
			zap.Int64("novel_id", in.NovelID),
			zap.String("month", in.Month.String()),
		)
	}
	s.obsMetrics.RecordIncomeRows(ctx, "editor", len(result.Rows))
	s.log.Debug("editorincome.allocated",
		zap.Int64("novel_id", in.NovelID),
		zap.String("month", in.Month.String()),
		zap.String("gross", rev.gross.String()),
		zap.String("editor_total", total.String()),
		zap.Int("rows", len(result.Rows)),
		zap.Int64("removed", result.Removed),
	)
	return result, nil
}

func (s *Service) ListByNovelMonth(ctx context.Context, novelID int64, month calendar.Month) ([]domain.EditorMonthlyIncome, error) {
	return s.repo.ListByNovelMonth(ctx, s.db, novelID, month.Start())
}

func (s *Service) ListByEditorMonth(ctx context.Context, editorID int64, month calendar.Month) ([]domain.EditorMonthlyIncome, error) {
	return s.repo.ListByEditorMonth(ctx, s.db, editorID, month.Start())
}
