package service

import (
	"context"
	"errors"
	"sync"

	"github.com/kongfuworld/settlement/internal/calendar"
	editorincomedomain "github.com/kongfuworld/settlement/internal/editorincome/domain"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/kongfuworld/settlement/internal/settlement/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"gorm.io/datatypes"
)

// flagSet collects flags raised concurrently during a run.
type flagSet struct {
	mu      sync.Mutex
	runID   string
	month   calendar.Month
	items   []*domain.SettlementFlag
	metrics *obsmetrics.Metrics
}

func newFlagSet(runID string, month calendar.Month, metrics *obsmetrics.Metrics) *flagSet {
	return &flagSet{runID: runID, month: month, metrics: metrics}
}

func (f *flagSet) add(ctx context.Context, flag domain.SettlementFlag, detail domain.FlagDetail) {
	flag.RunID = f.runID
	flag.Month = f.month.Start()
	flag.Detail = datatypes.NewJSONType(detail)

	f.mu.Lock()
	f.items = append(f.items, &flag)
	f.mu.Unlock()
	f.metrics.RecordFlag(ctx, string(flag.Kind), string(flag.Severity))
}

func (f *flagSet) event(ctx context.Context, ev paymentdomain.PaymentEvent, kind domain.FlagKind, err error) {
	sourceID := ev.SourceID
	novelID := ev.NovelID
	f.add(ctx, domain.SettlementFlag{
		Kind:       kind,
		Severity:   domain.SeverityFatal,
		SourceType: string(ev.SourceType),
		SourceID:   &sourceID,
		NovelID:    &novelID,
	}, domain.FlagDetail{Error: err.Error(), Expected: ev.Amount.String()})
}

func (f *flagSet) snapshot() []*domain.SettlementFlag {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.SettlementFlag, len(f.items))
	copy(out, f.items)
	return out
}

// eventFlagKind maps a per-event failure to the flag taxonomy.
func eventFlagKind(err error) domain.FlagKind {
	switch {
	case errors.Is(err, proration.ErrSumMismatch),
		errors.Is(err, proration.ErrNegativeFragment),
		errors.Is(err, spendingdomain.ErrSumInvariant):
		return domain.FlagInvariantViolation
	case errors.Is(err, proration.ErrNegativeAmount),
		errors.Is(err, proration.ErrInvalidInterval),
		errors.Is(err, proration.ErrDurationMismatch),
		errors.Is(err, proration.ErrUnknownSourceType),
		errors.Is(err, paymentdomain.ErrMissingKarmaRate),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, spendingdomain.ErrInvalidSource),
		errors.Is(err, spendingdomain.ErrNoFragments):
		return domain.FlagInputInvalid
	default:
		return domain.FlagProcessingError
	}
}

// allocationFlagKind maps a per-novel allocation failure to the flag taxonomy.
func allocationFlagKind(err error) domain.FlagKind {
	switch {
	case errors.Is(err, editorincomedomain.ErrReconciliation):
		return domain.FlagReconciliationMismatch
	case errors.Is(err, editorincomedomain.ErrExceedsGross),
		errors.Is(err, editorincomedomain.ErrNegativeIncome):
		return domain.FlagInvariantViolation
	default:
		return domain.FlagProcessingError
	}
}
