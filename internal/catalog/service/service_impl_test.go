package service

import (
	"context"
	"testing"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/dbtest"
	"github.com/kongfuworld/settlement/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupCatalog(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db := dbtest.Open(t)
	svc := NewService(Params{
		Log:         zap.NewNop(),
		Novels:      repository.ProvideStore[domain.Novel](db),
		Assignments: repository.ProvideStore[domain.ChapterAssignment](db),
		Workloads:   repository.ProvideStore[domain.ChapterWorkload](db),
		Totals:      repository.ProvideStore[domain.NovelChapterTotal](db),
	})
	return svc, db
}

func TestNovelLookups(t *testing.T) {
	ctx := context.Background()
	svc, db := setupCatalog(t)

	require.NoError(t, db.Create([]domain.Novel{
		{ID: 42, AuthorUserID: 7, Title: "The Long Road"},
		{ID: 43, AuthorUserID: 7, Title: "Side Story"},
		{ID: 50, AuthorUserID: 9, Title: "Other"},
	}).Error)

	novel, err := svc.GetNovel(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), novel.AuthorUserID)

	_, err = svc.GetNovel(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNovelNotFound)
	_, err = svc.GetNovel(ctx, 0)
	assert.ErrorIs(t, err, domain.ErrNovelNotFound)

	novels, err := svc.NovelsByAuthor(ctx, 7)
	require.NoError(t, err)
	require.Len(t, novels, 2)
	assert.Equal(t, int64(42), novels[0].ID)

	none, err := svc.NovelsByAuthor(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	authors, err := svc.AuthorsOfNovels(ctx, []int64{42, 50, 77})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{42: 7, 50: 9}, authors)
}

func TestAssignments(t *testing.T) {
	ctx := context.Background()
	svc, db := setupCatalog(t)
	node := dbtest.Node(t)

	require.NoError(t, db.Create([]domain.ChapterAssignment{
		{ID: node.Generate(), NovelID: 42, ChapterID: 900, Role: domain.RoleEditor, EditorID: 11},
		{ID: node.Generate(), NovelID: 42, ChapterID: 900, Role: domain.RoleChiefEditor, EditorID: 10},
		{ID: node.Generate(), NovelID: 43, ChapterID: 950, Role: domain.RoleEditor, EditorID: 12},
	}).Error)

	assignments, err := svc.Assignments(ctx, 42)
	require.NoError(t, err)

	editor, ok := assignments.Editor(900, domain.RoleEditor)
	require.True(t, ok)
	assert.Equal(t, int64(11), editor)
	_, ok = assignments.Editor(900, domain.RoleProofreader)
	assert.False(t, ok)
	_, ok = assignments.Editor(950, domain.RoleEditor)
	assert.False(t, ok)
}

func TestWorkload(t *testing.T) {
	ctx := context.Background()
	svc, db := setupCatalog(t)
	node := dbtest.Node(t)

	month, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	start := month.Start()

	require.NoError(t, db.Create(&domain.NovelChapterTotal{ID: node.Generate(), NovelID: 42, Month: start, ChapterCount: 20}).Error)
	require.NoError(t, db.Create([]domain.ChapterWorkload{
		{ID: node.Generate(), NovelID: 42, Month: start, Role: domain.RoleEditor, EditorID: 11, ChapterCount: 12},
		{ID: node.Generate(), NovelID: 42, Month: start, Role: domain.RoleEditor, EditorID: 12, ChapterCount: 8},
		{ID: node.Generate(), NovelID: 42, Month: start, Role: domain.RoleProofreader, EditorID: 20, ChapterCount: 0},
		{ID: node.Generate(), NovelID: 42, Month: start.AddDate(0, 1, 0), Role: domain.RoleEditor, EditorID: 11, ChapterCount: 5},
	}).Error)

	w, err := svc.Workload(ctx, 42, month)
	require.NoError(t, err)
	assert.Equal(t, 20, w.Total)
	assert.Equal(t, 20, w.RoleCount(domain.RoleEditor))
	assert.Equal(t, 0, w.RoleCount(domain.RoleProofreader))
	require.Len(t, w.ByRole[domain.RoleEditor], 2)
	assert.Equal(t, int64(11), w.ByRole[domain.RoleEditor][0].EditorID)

	empty, err := svc.Workload(ctx, 42, month.Prev())
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Empty(t, empty.ByRole)
}

func TestWorkloadRejectsNegativeCounts(t *testing.T) {
	svc, db := setupCatalog(t)
	node := dbtest.Node(t)
	start := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&domain.ChapterWorkload{
		ID: node.Generate(), NovelID: 42, Month: start, Role: domain.RoleEditor, EditorID: 11, ChapterCount: -1,
	}).Error)

	_, err := svc.Workload(context.Background(), 42, calendar.MonthOf(start))
	assert.ErrorIs(t, err, domain.ErrInvalidWorkload)
}
