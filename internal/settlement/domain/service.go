package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
)

type Service interface {
	SettleMonth(ctx context.Context, month calendar.Month, opts RunOptions) (*Report, error)
	// Backfill settles every month in [from, to] in ascending order through
	// the same path as SettleMonth.
	Backfill(ctx context.Context, from, to calendar.Month, opts RunOptions) ([]*Report, error)
	// LastSettled returns the latest finished run of month, or nil.
	LastSettled(ctx context.Context, month calendar.Month) (*SettlementRun, error)
	GetReport(ctx context.Context, runID string) (*Report, error)
}
