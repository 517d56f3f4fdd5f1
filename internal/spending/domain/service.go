package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/shopspring/decimal"
)

// WriteRequest carries every fragment of one payment event.
type WriteRequest struct {
	Event     paymentdomain.PaymentEvent
	Amount    decimal.Decimal
	Currency  string
	Fragments []proration.Fragment
	Epsilon   decimal.Decimal
}

type Service interface {
	// WriteEvent replaces the ledger rows of one event in a single transaction.
	WriteEvent(ctx context.Context, req WriteRequest) (*WriteResult, error)
	RemoveSource(ctx context.Context, key paymentdomain.SourceKey) (int64, error)
	ListBySource(ctx context.Context, key paymentdomain.SourceKey) ([]SpendingFragment, error)
	ListByNovelMonth(ctx context.Context, novelID int64, month calendar.Month) ([]SpendingFragment, error)
	TotalsForNovels(ctx context.Context, novelIDs []int64, month calendar.Month) (map[int64]NovelTotals, error)
	SourcesInMonth(ctx context.Context, month calendar.Month) ([]paymentdomain.SourceKey, error)
	NovelsInMonth(ctx context.Context, month calendar.Month) ([]int64, error)
}
