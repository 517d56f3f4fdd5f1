package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
)

type Service interface {
	GetNovel(ctx context.Context, novelID int64) (*Novel, error)
	NovelsByAuthor(ctx context.Context, authorUserID int64) ([]Novel, error)
	AuthorsOfNovels(ctx context.Context, novelIDs []int64) (map[int64]int64, error)
	Assignments(ctx context.Context, novelID int64) (Assignments, error)
	Workload(ctx context.Context, novelID int64, month calendar.Month) (*Workload, error)
}
