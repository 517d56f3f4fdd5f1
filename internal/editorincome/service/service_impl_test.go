package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	catalogservice "github.com/kongfuworld/settlement/internal/catalog/service"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/dbtest"
	"github.com/kongfuworld/settlement/internal/editorincome/domain"
	"github.com/kongfuworld/settlement/internal/editorincome/repository"
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

type allocatorFixture struct {
	svc   domain.Service
	db    *gorm.DB
	node  *snowflake.Node
	month calendar.Month
}

func setupAllocator(t *testing.T) allocatorFixture {
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

	month, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	f := allocatorFixture{svc: svc, db: db, node: node, month: month}
	f.seed(t)
	return f
}

func (f allocatorFixture) seed(t *testing.T) {
	t.Helper()
	start := f.month.Start()
	chapter := int64(900)

	require.NoError(t, f.db.Create([]spendingdomain.SpendingFragment{
		{
			ID: f.node.Generate(), SourceType: paymentdomain.SourceTypeSubscription, SourceID: 1,
			SettlementMonth: start, UserID: 100, NovelID: 42, Amount: dec("100"), Currency: "USD",
			OverlapDays: dec("30"), SpendTime: start,
		},
		{
			ID: f.node.Generate(), SourceType: paymentdomain.SourceTypeUnlock, SourceID: 2,
			SettlementMonth: start, UserID: 101, NovelID: 42, ChapterID: &chapter, Amount: dec("10"), Currency: "USD",
			OverlapDays: decimal.Zero, SpendTime: start,
		},
	}).Error)
	require.NoError(t, f.db.Create([]catalogdomain.ChapterAssignment{
		{ID: f.node.Generate(), NovelID: 42, ChapterID: 900, Role: catalogdomain.RoleChiefEditor, EditorID: 10},
		{ID: f.node.Generate(), NovelID: 42, ChapterID: 900, Role: catalogdomain.RoleEditor, EditorID: 11},
	}).Error)
	require.NoError(t, f.db.Create(&catalogdomain.NovelChapterTotal{ID: f.node.Generate(), NovelID: 42, Month: start, ChapterCount: 20}).Error)
	require.NoError(t, f.db.Create([]catalogdomain.ChapterWorkload{
		{ID: f.node.Generate(), NovelID: 42, Month: start, Role: catalogdomain.RoleChiefEditor, EditorID: 10, ChapterCount: 20},
		{ID: f.node.Generate(), NovelID: 42, Month: start, Role: catalogdomain.RoleEditor, EditorID: 11, ChapterCount: 12},
		{ID: f.node.Generate(), NovelID: 42, Month: start, Role: catalogdomain.RoleEditor, EditorID: 12, ChapterCount: 8},
	}).Error)
}

func (f allocatorFixture) input(contracts ...int) domain.AllocationInput {
	res := resolution()
	res.Month = f.month
	all := map[int]func() {
		1: func() { res.Resolved[catalogdomain.RoleChiefEditor] = contract(1, catalogdomain.RoleChiefEditor, "0.05") },
		2: func() { res.Resolved[catalogdomain.RoleEditor] = contract(2, catalogdomain.RoleEditor, "0.10") },
	}
	for _, c := range contracts {
		all[c]()
	}
	return domain.AllocationInput{
		NovelID:    42,
		Month:      f.month,
		Resolution: res,
		AuthorSide: dec("110"),
		Config:     config.DefaultSettlementConfig(),
	}
}

func TestAllocatePersistsRows(t *testing.T) {
	ctx := context.Background()
	f := setupAllocator(t)

	res, err := f.svc.Allocate(ctx, f.input(1, 2))
	require.NoError(t, err)
	assert.True(t, res.Gross.Equal(dec("110")))
	// chief 0.5 + 5, editor 11 1 + 6, editor 12 4
	assert.True(t, res.EditorTotal.Equal(dec("16.5")), "total %s", res.EditorTotal)
	require.Len(t, res.Rows, 3)

	rows, err := f.svc.ListByEditorMonth(ctx, 11, f.month)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].EditorIncome.Equal(dec("7")))
	assert.Equal(t, domain.IncomeSourceMixed, rows[0].SourceType)
}

func TestAllocateRerunIsStableAndReplacesSet(t *testing.T) {
	ctx := context.Background()
	f := setupAllocator(t)

	first, err := f.svc.Allocate(ctx, f.input(1, 2))
	require.NoError(t, err)
	again, err := f.svc.Allocate(ctx, f.input(1, 2))
	require.NoError(t, err)
	require.Len(t, again.Rows, len(first.Rows))
	for i := range first.Rows {
		assert.Equal(t, first.Rows[i].ID, again.Rows[i].ID)
		assert.True(t, first.Rows[i].EditorIncome.Equal(again.Rows[i].EditorIncome))
	}
	assert.Equal(t, int64(0), again.Removed)

	// The editor role is no longer resolved, e.g. after a contract conflict.
	reduced, err := f.svc.Allocate(ctx, f.input(1))
	require.NoError(t, err)
	assert.Equal(t, int64(2), reduced.Removed)

	rows, err := f.svc.ListByNovelMonth(ctx, 42, f.month)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, catalogdomain.RoleChiefEditor, rows[0].Role)

	none, err := f.svc.Allocate(ctx, f.input())
	require.NoError(t, err)
	assert.Empty(t, none.Rows)
	assert.Equal(t, int64(1), none.Removed)
}

func TestAllocateReconcilesWithAuthorSide(t *testing.T) {
	f := setupAllocator(t)
	in := f.input(1, 2)
	in.AuthorSide = dec("109")

	_, err := f.svc.Allocate(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrReconciliation)

	rows, err := f.svc.ListByNovelMonth(context.Background(), 42, f.month)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAllocateRejectsInvalidInput(t *testing.T) {
	f := setupAllocator(t)

	in := f.input(1)
	in.Resolution = nil
	_, err := f.svc.Allocate(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = f.input(1)
	in.Resolution.NovelID = 43
	_, err = f.svc.Allocate(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	in = f.input(1)
	in.Config = config.SettlementConfig{}
	_, err = f.svc.Allocate(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAllocateUsesEpsilonFromInput(t *testing.T) {
	ctx := context.Background()
	f := setupAllocator(t)

	in := f.input(1, 2)
	in.AuthorSide = dec("110.0000005")
	_, err := f.svc.Allocate(ctx, in)
	require.NoError(t, err)

	in.Config.Epsilon = 0.000000001
	_, err = f.svc.Allocate(ctx, in)
	assert.ErrorIs(t, err, domain.ErrReconciliation)
}
