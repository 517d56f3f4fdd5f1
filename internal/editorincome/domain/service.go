package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
)

type Service interface {
	// Allocate computes and replaces the editor rows of one novel month.
	Allocate(ctx context.Context, in AllocationInput) (*AllocationResult, error)
	ListByNovelMonth(ctx context.Context, novelID int64, month calendar.Month) ([]EditorMonthlyIncome, error)
	ListByEditorMonth(ctx context.Context, editorID int64, month calendar.Month) ([]EditorMonthlyIncome, error)
}
