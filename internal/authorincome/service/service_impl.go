package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/config"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
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
		log:        p.Log.Named("authorincome.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		catalog:    p.Catalog,
		spending:   p.Spending,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Aggregate(ctx context.Context, userID int64, month calendar.Month, cfg config.SettlementConfig) (*domain.AggregateResult, error) {
	if userID <= 0 {
		return nil, domain.ErrInvalidAuthor
	}
	if err := config.ValidateSettlementConfig(cfg); err != nil {
		return nil, fmt.Errorf("settlement config: %w", err)
	}

	novels, err := s.catalog.NovelsByAuthor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load novels: %w", err)
	}
	novelIDs := make([]int64, 0, len(novels))
	for _, n := range novels {
		novelIDs = append(novelIDs, n.ID)
	}
	totals, err := s.spending.TotalsForNovels(ctx, novelIDs, month)
	if err != nil {
		return nil, fmt.Errorf("sum fragments: %w", err)
	}

	breakdown := make(domain.NovelBreakdown, len(novelIDs))
	base := decimal.Zero
	for _, id := range novelIDs {
		gross := totals[id].Gross()
		if gross.IsZero() {
			continue
		}
		breakdown[domain.NovelKey(id)] = gross
		base = base.Add(gross)
	}

	result := &domain.AggregateResult{Month: month, Novels: novelIDs}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		referral, err := s.repo.SumReferral(ctx, tx, userID, month.Start())
		if err != nil {
			return err
		}
		existing, err := s.repo.Get(ctx, tx, userID, month.Start())
		if err != nil {
			return err
		}

		row := &domain.AuthorMonthlyIncome{
			ID:             s.genID.Generate(),
			UserID:         userID,
			Month:          month.Start(),
			BaseIncome:     base,
			ReferralIncome: referral,
			TotalIncome:    base.Add(referral),
			NovelBreakdown: datatypes.NewJSONType(breakdown),
			Currency:       cfg.Currency,
			PaidAmount:     decimal.Zero,
			PayoutStatus:   domain.PayoutStatusPending,
		}
		if existing != nil {
			row.ID = existing.ID
		}
		if err := s.repo.Upsert(ctx, tx, row); err != nil {
			return err
		}

		persisted, err := s.repo.Get(ctx, tx, userID, month.Start())
		if err != nil {
			return err
		}
		if persisted == nil {
			return domain.ErrIncomeNotFound
		}
		expected := persisted.BaseIncome.Add(persisted.ReferralIncome)
		if persisted.TotalIncome.Sub(expected).Abs().GreaterThan(cfg.EpsilonDecimal()) {
			return fmt.Errorf("%w: user %d month %s total %s, base+referral %s",
				domain.ErrTotalMismatch, userID, month, persisted.TotalIncome, expected)
		}
		result.Income = persisted
		result.Created = existing == nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordIncomeRows(ctx, "author", 1)
	s.log.Debug("authorincome.aggregated",
		zap.Int64("user_id", userID),
		zap.String("month", month.String()),
		zap.String("base_income", base.String()),
		zap.String("total_income", result.Income.TotalIncome.String()),
		zap.Int("novels", len(breakdown)),
	)
	return result, nil
}

// AuthorsForMonth returns authors of novels with fragments in month, users
// with referral income, and users holding a row that may need zeroing.
// Novels with fragments but no catalog author are returned with their gross.
func (s *Service) AuthorsForMonth(ctx context.Context, month calendar.Month) (*domain.MonthAuthors, error) {
	novelIDs, err := s.spending.NovelsInMonth(ctx, month)
	if err != nil {
		return nil, err
	}
	authors, err := s.catalog.AuthorsOfNovels(ctx, novelIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(authors))
	var unowned []int64
	for _, novelID := range novelIDs {
		userID, ok := authors[novelID]
		if !ok {
			unowned = append(unowned, novelID)
			continue
		}
		seen[userID] = struct{}{}
	}

	plan := &domain.MonthAuthors{}
	if len(unowned) > 0 {
		totals, err := s.spending.TotalsForNovels(ctx, unowned, month)
		if err != nil {
			return nil, fmt.Errorf("sum unowned novels: %w", err)
		}
		sort.Slice(unowned, func(i, j int) bool { return unowned[i] < unowned[j] })
		for _, novelID := range unowned {
			gross := totals[novelID].Gross()
			plan.Unowned = append(plan.Unowned, domain.UnownedNovel{NovelID: novelID, Gross: gross})
			s.log.Warn("authorincome.novel_without_author",
				zap.Int64("novel_id", novelID),
				zap.String("month", month.String()),
				zap.String("gross", gross.String()),
			)
		}
	}

	referral, err := s.repo.UsersWithReferral(ctx, s.db, month.Start())
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.UsersWithRows(ctx, s.db, month.Start())
	if err != nil {
		return nil, err
	}
	for _, id := range append(referral, existing...) {
		seen[id] = struct{}{}
	}

	plan.Authors = make([]int64, 0, len(seen))
	for id := range seen {
		plan.Authors = append(plan.Authors, id)
	}
	sort.Slice(plan.Authors, func(i, j int) bool { return plan.Authors[i] < plan.Authors[j] })
	return plan, nil
}

func (s *Service) Get(ctx context.Context, userID int64, month calendar.Month) (*domain.AuthorMonthlyIncome, error) {
	row, err := s.repo.Get(ctx, s.db, userID, month.Start())
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, domain.ErrIncomeNotFound
	}
	return row, nil
}

func (s *Service) ListByMonth(ctx context.Context, month calendar.Month) ([]domain.AuthorMonthlyIncome, error) {
	return s.repo.ListByMonth(ctx, s.db, month.Start())
}
