package service

import (
	"context"
	"fmt"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/pkg/db/option"
	"github.com/kongfuworld/settlement/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Novels      repository.Repository[domain.Novel]
	Assignments repository.Repository[domain.ChapterAssignment]
	Workloads   repository.Repository[domain.ChapterWorkload]
	Totals      repository.Repository[domain.NovelChapterTotal]
}

type Service struct {
	log         *zap.Logger
	novels      repository.Repository[domain.Novel]
	assignments repository.Repository[domain.ChapterAssignment]
	workloads   repository.Repository[domain.ChapterWorkload]
	totals      repository.Repository[domain.NovelChapterTotal]
}

func NewService(p Params) domain.Service {
	return &Service{
		log:         p.Log.Named("catalog.service"),
		novels:      p.Novels,
		assignments: p.Assignments,
		workloads:   p.Workloads,
		totals:      p.Totals,
	}
}

func (s *Service) GetNovel(ctx context.Context, novelID int64) (*domain.Novel, error) {
	if novelID <= 0 {
		return nil, domain.ErrNovelNotFound
	}
	novel, err := s.novels.FindOne(ctx, &domain.Novel{ID: novelID})
	if err != nil {
		return nil, err
	}
	if novel == nil {
		return nil, domain.ErrNovelNotFound
	}
	return novel, nil
}

func (s *Service) NovelsByAuthor(ctx context.Context, authorUserID int64) ([]domain.Novel, error) {
	if authorUserID <= 0 {
		return nil, nil
	}
	items, err := s.novels.Find(ctx, &domain.Novel{AuthorUserID: authorUserID}, option.WithOrder("id ASC"))
	if err != nil {
		return nil, err
	}
	novels := make([]domain.Novel, 0, len(items))
	for _, item := range items {
		novels = append(novels, *item)
	}
	return novels, nil
}

// AuthorsOfNovels maps novel id to author user id. Unknown novels are omitted.
func (s *Service) AuthorsOfNovels(ctx context.Context, novelIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(novelIDs))
	if len(novelIDs) == 0 {
		return out, nil
	}
	items, err := s.novels.Find(ctx, nil, option.WithWhere("id IN ?", novelIDs))
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item.AuthorUserID
	}
	return out, nil
}

func (s *Service) Assignments(ctx context.Context, novelID int64) (domain.Assignments, error) {
	items, err := s.assignments.Find(ctx, nil, option.WithWhere("novel_id = ?", novelID))
	if err != nil {
		return nil, err
	}
	out := make(domain.Assignments, len(items))
	for _, item := range items {
		roles, ok := out[item.ChapterID]
		if !ok {
			roles = make(map[domain.Role]int64, 2)
			out[item.ChapterID] = roles
		}
		roles[item.Role] = item.EditorID
	}
	return out, nil
}

// Workload loads the month's chapter total and per-role editor counts.
// A month without a recorded total has zero chapters.
func (s *Service) Workload(ctx context.Context, novelID int64, month calendar.Month) (*domain.Workload, error) {
	start := month.Start()
	total, err := s.totals.FindOne(ctx, nil, option.WithWhere("novel_id = ? AND month = ?", novelID, start))
	if err != nil {
		return nil, err
	}
	rows, err := s.workloads.Find(ctx, nil,
		option.WithWhere("novel_id = ? AND month = ?", novelID, start),
		option.WithOrder("role ASC, editor_id ASC"),
	)
	if err != nil {
		return nil, err
	}

	w := &domain.Workload{NovelID: novelID, Month: month, ByRole: make(map[domain.Role][]domain.EditorCount)}
	if total != nil {
		w.Total = total.ChapterCount
	}
	if w.Total < 0 {
		return nil, fmt.Errorf("%w: novel %d month %s total %d", domain.ErrInvalidWorkload, novelID, month, w.Total)
	}
	for _, row := range rows {
		if row.ChapterCount < 0 {
			return nil, fmt.Errorf("%w: novel %d editor %d count %d", domain.ErrInvalidWorkload, novelID, row.EditorID, row.ChapterCount)
		}
		if row.ChapterCount == 0 {
			continue
		}
		w.ByRole[row.Role] = append(w.ByRole[row.Role], domain.EditorCount{
			EditorID:     row.EditorID,
			ChapterCount: row.ChapterCount,
		})
	}
	return w, nil
}
