package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/kongfuworld/settlement/internal/authorincome/repository"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	catalogservice "github.com/kongfuworld/settlement/internal/catalog/service"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/dbtest"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	spendingrepository "github.com/kongfuworld/settlement/internal/spending/repository"
	spendingservice "github.com/kongfuworld/settlement/internal/spending/service"
	pkgrepository "github.com/kongfuworld/settlement/pkg/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authorFixture struct {
	svc  domain.Service
	db   *gorm.DB
	node *snowflake.Node
}

func setupAuthorIncome(t *testing.T) authorFixture {
	t.Helper()
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	log := zap.NewNop()

	catalog := catalogservice.NewService(catalogservice.Params{
		Log:         log,
		Novels:      pkgrepository.ProvideStore[catalogdomain.Novel](db),
		Assignments: pkgrepository.ProvideStore[catalogdomain.ChapterAssignment](db),
		Workloads:   pkgrepository.ProvideStore[catalogdomain.ChapterWorkload](db),
		Totals:      pkgrepository.ProvideStore[catalogdomain.NovelChapterTotal](db),
	})
	spending := spendingservice.NewService(spendingservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Repo:  spendingrepository.Provide(),
	})
	svc := NewService(Params{
		DB:       db,
		Log:      log,
		GenID:    node,
		Repo:     repository.Provide(),
		Catalog:  catalog,
		Spending: spending,
	})

	require.NoError(t, db.Create([]catalogdomain.Novel{
		{ID: 42, AuthorUserID: 7, Title: "The Long Road"},
		{ID: 43, AuthorUserID: 7, Title: "Side Story"},
		{ID: 50, AuthorUserID: 9, Title: "Other"},
	}).Error)
	return authorFixture{svc: svc, db: db, node: node}
}

func (f authorFixture) fragment(t *testing.T, sourceID, novelID int64, month calendar.Month, amount string) {
	t.Helper()
	require.NoError(t, f.db.Create(&spendingdomain.SpendingFragment{
		ID:              f.node.Generate(),
		SourceType:      paymentdomain.SourceTypeSubscription,
		SourceID:        sourceID,
		SettlementMonth: month.Start(),
		UserID:          1000 + sourceID,
		NovelID:         novelID,
		Amount:          decimal.RequireFromString(amount),
		Currency:        "USD",
		OverlapDays:     decimal.Zero,
		SpendTime:       month.Start(),
	}).Error)
}

func (f authorFixture) referral(t *testing.T, userID int64, month calendar.Month, kind, amount string) {
	t.Helper()
	require.NoError(t, f.db.Create(&domain.ReferralIncome{
		ID:           f.node.Generate(),
		UserID:       userID,
		Month:        month.Start(),
		ReferralType: kind,
		Amount:       decimal.RequireFromString(amount),
	}).Error)
}

var testConfig = config.DefaultSettlementConfig()

func mustMonth(t *testing.T, value string) calendar.Month {
	t.Helper()
	m, err := calendar.ParseMonth(value)
	require.NoError(t, err)
	return m
}

func TestAggregateSumsNovelsAndReferral(t *testing.T) {
	ctx := context.Background()
	f := setupAuthorIncome(t)
	nov := mustMonth(t, "2025-11")

	f.fragment(t, 1, 42, nov, "9.35")
	f.fragment(t, 2, 42, nov, "0.35")
	f.fragment(t, 3, 43, nov, "1.5")
	f.fragment(t, 4, 42, nov.Next(), "0.64")
	f.fragment(t, 5, 50, nov, "3")
	f.referral(t, 7, nov, "reader", "2.25")

	res, err := f.svc.Aggregate(ctx, 7, nov, testConfig)
	require.NoError(t, err)
	assert.True(t, res.Created)

	row := res.Income
	assert.True(t, row.BaseIncome.Equal(decimal.RequireFromString("11.2")), "base %s", row.BaseIncome)
	assert.True(t, row.ReferralIncome.Equal(decimal.RequireFromString("2.25")))
	assert.True(t, row.TotalIncome.Equal(decimal.RequireFromString("13.45")))
	amount, ok := row.NovelAmount(42)
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("9.7")), "novel 42 %s", amount)
	amount, ok = row.NovelAmount(43)
	require.True(t, ok)
	assert.True(t, amount.Equal(decimal.RequireFromString("1.5")))
	assert.Len(t, row.NovelBreakdown.Data(), 2)
	assert.Equal(t, domain.PayoutStatusPending, row.PayoutStatus)
}

func TestAggregatePreservesPayoutState(t *testing.T) {
	ctx := context.Background()
	f := setupAuthorIncome(t)
	nov := mustMonth(t, "2025-11")
	f.fragment(t, 1, 42, nov, "10")

	first, err := f.svc.Aggregate(ctx, 7, nov, testConfig)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&domain.AuthorMonthlyIncome{}).
		Where("id = ?", first.Income.ID).
		Updates(map[string]any{"paid_amount": decimal.NewFromInt(4), "payout_status": domain.PayoutStatusPartial}).Error)

	f.fragment(t, 2, 43, nov, "2")
	second, err := f.svc.Aggregate(ctx, 7, nov, testConfig)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Income.ID, second.Income.ID)
	assert.True(t, second.Income.TotalIncome.Equal(decimal.NewFromInt(12)))
	assert.True(t, second.Income.PaidAmount.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, domain.PayoutStatusPartial, second.Income.PayoutStatus)

	rows, err := f.svc.ListByMonth(ctx, nov)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAggregateZeroesAuthorWithoutRevenue(t *testing.T) {
	ctx := context.Background()
	f := setupAuthorIncome(t)
	nov := mustMonth(t, "2025-11")
	f.fragment(t, 1, 42, nov, "10")

	_, err := f.svc.Aggregate(ctx, 7, nov, testConfig)
	require.NoError(t, err)

	require.NoError(t, f.db.Where("source_id = ?", 1).Delete(&spendingdomain.SpendingFragment{}).Error)

	plan, err := f.svc.AuthorsForMonth(ctx, nov)
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, plan.Authors)
	assert.Empty(t, plan.Unowned)

	res, err := f.svc.Aggregate(ctx, 7, nov, testConfig)
	require.NoError(t, err)
	assert.True(t, res.Income.TotalIncome.IsZero())
	assert.Empty(t, res.Income.NovelBreakdown.Data())
}

func TestAuthorsForMonth(t *testing.T) {
	ctx := context.Background()
	f := setupAuthorIncome(t)
	nov := mustMonth(t, "2025-11")

	f.fragment(t, 1, 50, nov, "3")
	f.fragment(t, 2, 77, nov, "1")
	f.referral(t, 3, nov, "author", "5")

	plan, err := f.svc.AuthorsForMonth(ctx, nov)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 9}, plan.Authors)
	require.Len(t, plan.Unowned, 1)
	assert.Equal(t, int64(77), plan.Unowned[0].NovelID)
	assert.True(t, plan.Unowned[0].Gross.Equal(decimal.NewFromInt(1)))

	res, err := f.svc.Aggregate(ctx, 3, nov, testConfig)
	require.NoError(t, err)
	assert.True(t, res.Income.BaseIncome.IsZero())
	assert.True(t, res.Income.TotalIncome.Equal(decimal.NewFromInt(5)))
}

func TestAggregateRejectsInvalidAuthor(t *testing.T) {
	f := setupAuthorIncome(t)
	_, err := f.svc.Aggregate(context.Background(), 0, mustMonth(t, "2025-11"), testConfig)
	assert.ErrorIs(t, err, domain.ErrInvalidAuthor)

	_, err = f.svc.Get(context.Background(), 7, mustMonth(t, "2025-11"))
	assert.ErrorIs(t, err, domain.ErrIncomeNotFound)
}

func TestAggregateRejectsInvalidConfig(t *testing.T) {
	f := setupAuthorIncome(t)
	cfg := config.DefaultSettlementConfig()
	cfg.Currency = ""

	_, err := f.svc.Aggregate(context.Background(), 7, mustMonth(t, "2025-11"), cfg)
	assert.Error(t, err)
}
