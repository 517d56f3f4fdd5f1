package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
)

type Service interface {
	// Aggregate recomputes the derived fields of an author's month row using
	// the run's config snapshot.
	Aggregate(ctx context.Context, userID int64, month calendar.Month, cfg config.SettlementConfig) (*AggregateResult, error)
	// AuthorsForMonth lists every author whose row for month must be recomputed,
	// and the ledger novels that have no author.
	AuthorsForMonth(ctx context.Context, month calendar.Month) (*MonthAuthors, error)
	Get(ctx context.Context, userID int64, month calendar.Month) (*AuthorMonthlyIncome, error)
	ListByMonth(ctx context.Context, month calendar.Month) ([]AuthorMonthlyIncome, error)
}
