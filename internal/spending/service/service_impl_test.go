package service

import (
	"context"
	"testing"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/dbtest"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
	"github.com/kongfuworld/settlement/internal/spending/domain"
	"github.com/kongfuworld/settlement/internal/spending/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()
	return NewService(Params{
		DB:    dbtest.Open(t),
		Log:   zap.NewNop(),
		GenID: dbtest.Node(t),
		Repo:  repository.Provide(),
	})
}

func boundarySubscription(t *testing.T) paymentdomain.PaymentEvent {
	t.Helper()
	start, err := calendar.ParseInstant("2025-11-02T22:03:15Z")
	require.NoError(t, err)
	end, err := calendar.ParseInstant("2025-12-02T22:03:15Z")
	require.NoError(t, err)
	return paymentdomain.PaymentEvent{
		SourceType:   paymentdomain.SourceTypeSubscription,
		SourceID:     501,
		UserID:       7,
		NovelID:      42,
		Amount:       decimal.RequireFromString("9.99"),
		Currency:     paymentdomain.CurrencyUSD,
		PurchasedAt:  start,
		ServiceStart: &start,
		ServiceEnd:   &end,
		DurationDays: 30,
		Status:       paymentdomain.EventStatusCompleted,
	}
}

func writeRequest(t *testing.T, ev paymentdomain.PaymentEvent) domain.WriteRequest {
	t.Helper()
	opts := proration.OptionsFrom(config.DefaultSettlementConfig())
	fragments, err := proration.Split(proration.InputFromEvent(ev, ev.Amount), opts)
	require.NoError(t, err)
	return domain.WriteRequest{
		Event:     ev,
		Amount:    ev.Amount,
		Currency:  ev.Currency,
		Fragments: fragments,
		Epsilon:   opts.Epsilon,
	}
}

func TestWriteEventSplitsAcrossMonths(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ev := boundarySubscription(t)

	res, err := svc.WriteEvent(ctx, writeRequest(t, ev))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, int64(0), res.Removed)

	rows, err := svc.ListBySource(ctx, ev.Key())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-11", rows[0].Month().String())
	assert.Equal(t, "2025-12", rows[1].Month().String())

	sum := rows[0].Amount.Add(rows[1].Amount)
	assert.True(t, sum.Sub(ev.Amount).Abs().LessThanOrEqual(decimal.RequireFromString("0.000001")), "sum %s", sum)
	nov, _ := rows[0].Amount.Float64()
	assert.InDelta(t, 9.35, nov, 0.005)
}

func TestWriteEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ev := boundarySubscription(t)

	_, err := svc.WriteEvent(ctx, writeRequest(t, ev))
	require.NoError(t, err)
	first, err := svc.ListBySource(ctx, ev.Key())
	require.NoError(t, err)

	_, err = svc.WriteEvent(ctx, writeRequest(t, ev))
	require.NoError(t, err)
	second, err := svc.ListBySource(ctx, ev.Key())
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.True(t, first[i].Amount.Equal(second[i].Amount))
		assert.True(t, first[i].SettlementMonth.Equal(second[i].SettlementMonth))
	}
}

func TestWriteEventRemovesStaleMonths(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ev := boundarySubscription(t)

	_, err := svc.WriteEvent(ctx, writeRequest(t, ev))
	require.NoError(t, err)

	// The corrected interval fits inside November.
	end := ev.ServiceStart.Add(20 * 24 * time.Hour)
	ev.ServiceEnd = &end
	ev.DurationDays = 20
	res, err := svc.WriteEvent(ctx, writeRequest(t, ev))
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Removed)

	rows, err := svc.ListBySource(ctx, ev.Key())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Amount.Equal(ev.Amount))

	dec, err := calendar.ParseMonth("2025-12")
	require.NoError(t, err)
	novels, err := svc.NovelsInMonth(ctx, dec)
	require.NoError(t, err)
	assert.Empty(t, novels)
}

func TestWriteEventRejectsFragmentsThatDoNotSum(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	ev := boundarySubscription(t)

	req := writeRequest(t, ev)
	req.Fragments[0].Amount = req.Fragments[0].Amount.Add(decimal.RequireFromString("0.01"))
	_, err := svc.WriteEvent(ctx, req)
	assert.ErrorIs(t, err, domain.ErrSumInvariant)

	rows, err := svc.ListBySource(ctx, ev.Key())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestWriteEventRejectsEmptyRequest(t *testing.T) {
	svc := newTestService(t)
	ev := boundarySubscription(t)

	_, err := svc.WriteEvent(context.Background(), domain.WriteRequest{Event: ev, Amount: ev.Amount})
	assert.ErrorIs(t, err, domain.ErrNoFragments)

	ev.SourceID = 0
	_, err = svc.WriteEvent(context.Background(), domain.WriteRequest{Event: ev})
	assert.ErrorIs(t, err, domain.ErrInvalidSource)
}

func TestRemoveSourceAndTotals(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	sub := boundarySubscription(t)

	chapter := int64(900)
	unlockAt, err := calendar.ParseInstant("2025-11-20T10:00:00Z")
	require.NoError(t, err)
	unlock := paymentdomain.PaymentEvent{
		SourceType:  paymentdomain.SourceTypeUnlock,
		SourceID:    77,
		UserID:      8,
		NovelID:     42,
		ChapterID:   &chapter,
		Amount:      decimal.RequireFromString("0.35"),
		Currency:    paymentdomain.CurrencyUSD,
		PurchasedAt: unlockAt,
		Status:      paymentdomain.EventStatusCompleted,
	}

	_, err = svc.WriteEvent(ctx, writeRequest(t, sub))
	require.NoError(t, err)
	_, err = svc.WriteEvent(ctx, writeRequest(t, unlock))
	require.NoError(t, err)

	nov, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	totals, err := svc.TotalsForNovels(ctx, []int64{42, 43}, nov)
	require.NoError(t, err)
	assert.True(t, totals[42].Unlock.Equal(decimal.RequireFromString("0.35")))
	assert.True(t, totals[42].Subscription.IsPositive())
	assert.True(t, totals[43].Gross().IsZero())

	sources, err := svc.SourcesInMonth(ctx, nov)
	require.NoError(t, err)
	assert.Len(t, sources, 2)

	removed, err := svc.RemoveSource(ctx, unlock.Key())
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	rows, err := svc.ListByNovelMonth(ctx, 42, nov)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, paymentdomain.SourceTypeSubscription, rows[0].SourceType)
}
