package proration

import (
	"math/rand"
	"testing"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions() Options {
	return OptionsFrom(config.DefaultSettlementConfig())
}

func instant(t *testing.T, value string) *time.Time {
	t.Helper()
	ts, err := calendar.ParseInstant(value)
	require.NoError(t, err)
	return &ts
}

func TestSplitBoundaryCrossingSubscription(t *testing.T) {
	in := Input{
		SourceType:   paymentdomain.SourceTypeSubscription,
		Amount:       decimal.RequireFromString("9.99"),
		PurchasedAt:  *instant(t, "2025-11-02T22:03:15Z"),
		ServiceStart: instant(t, "2025-11-02T22:03:15Z"),
		ServiceEnd:   instant(t, "2025-12-02T22:03:15Z"),
		DurationDays: 30,
	}

	fragments, err := Split(in, testOptions())
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	nov, dec := fragments[0], fragments[1]
	assert.Equal(t, "2025-11", nov.Month.String())
	assert.Equal(t, "2025-12", dec.Month.String())

	novDays, _ := nov.OverlapDays.Float64()
	assert.InDelta(t, 28.081, novDays, 0.001)
	novAmount, _ := nov.Amount.Float64()
	assert.InDelta(t, 9.35, novAmount, 0.005)
	assert.Equal(t, int64(28*86400+7005), nov.OverlapSeconds)

	assert.True(t, dec.Amount.Equal(decimal.RequireFromString("9.99").Sub(nov.Amount)))
	assert.True(t, nov.Amount.Add(dec.Amount).Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, in.ServiceStart.UTC(), nov.SpendTime)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), dec.SpendTime)
}

func TestSplitUnlockIsSingleFragment(t *testing.T) {
	in := Input{
		SourceType:  paymentdomain.SourceTypeUnlock,
		Amount:      decimal.RequireFromString("0.35"),
		PurchasedAt: *instant(t, "2025-03-31T23:59:59Z"),
	}

	fragments, err := Split(in, testOptions())
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "2025-03", fragments[0].Month.String())
	assert.True(t, fragments[0].Amount.Equal(in.Amount))
	assert.True(t, fragments[0].OverlapDays.IsZero())
}

func TestSplitZeroDurationSubscriptionUsesStartMonth(t *testing.T) {
	at := instant(t, "2025-06-01T00:00:00Z")
	in := Input{
		SourceType:   paymentdomain.SourceTypeSubscription,
		Amount:       decimal.RequireFromString("4.99"),
		PurchasedAt:  *at,
		ServiceStart: at,
		ServiceEnd:   at,
	}

	fragments, err := Split(in, testOptions())
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, "2025-06", fragments[0].Month.String())
	assert.True(t, fragments[0].Amount.Equal(in.Amount))
}

func TestSplitExactSumOverManyMonths(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	opts := testOptions()

	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(rng.Int63n(int64(400 * 24 * time.Hour))))
		end := start.Add(time.Duration(1 + rng.Int63n(int64(370*24*time.Hour))))
		amount := decimal.New(rng.Int63n(10_000_00)+1, -2)

		fragments, err := Split(Input{
			SourceType:   paymentdomain.SourceTypeSubscription,
			Amount:       amount,
			PurchasedAt:  start,
			ServiceStart: &start,
			ServiceEnd:   &end,
		}, opts)
		require.NoError(t, err)

		sum := decimal.Zero
		for j, f := range fragments {
			sum = sum.Add(f.Amount)
			assert.False(t, f.Amount.IsNegative())
			if j > 0 {
				assert.True(t, fragments[j-1].Month.Before(f.Month))
			}
		}
		assert.True(t, sum.Equal(amount), "sum %s != %s", sum, amount)
	}
}

func TestSplitRejectsMalformedInput(t *testing.T) {
	start := instant(t, "2025-01-10T00:00:00Z")
	end := instant(t, "2025-02-10T00:00:00Z")

	cases := []struct {
		name string
		in   Input
		want error
	}{
		{
			name: "negative amount",
			in:   Input{SourceType: paymentdomain.SourceTypeUnlock, Amount: decimal.NewFromInt(-1), PurchasedAt: *start},
			want: ErrNegativeAmount,
		},
		{
			name: "subscription without bounds",
			in:   Input{SourceType: paymentdomain.SourceTypeSubscription, Amount: decimal.NewFromInt(5), ServiceStart: start},
			want: ErrInvalidInterval,
		},
		{
			name: "inverted",
			in:   Input{SourceType: paymentdomain.SourceTypeSubscription, Amount: decimal.NewFromInt(5), ServiceStart: end, ServiceEnd: start},
			want: ErrInvalidInterval,
		},
		{
			name: "unlock with interval",
			in:   Input{SourceType: paymentdomain.SourceTypeUnlock, Amount: decimal.NewFromInt(1), PurchasedAt: *start, ServiceStart: start, ServiceEnd: end},
			want: ErrInvalidInterval,
		},
		{
			name: "declared duration disagrees",
			in:   Input{SourceType: paymentdomain.SourceTypeSubscription, Amount: decimal.NewFromInt(5), ServiceStart: start, ServiceEnd: end, DurationDays: 90},
			want: ErrDurationMismatch,
		},
		{
			name: "unknown type",
			in:   Input{SourceType: "gift", Amount: decimal.NewFromInt(5), PurchasedAt: *start},
			want: ErrUnknownSourceType,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split(tc.in, testOptions())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestMonths(t *testing.T) {
	months, err := Months(Input{
		SourceType:   paymentdomain.SourceTypeSubscription,
		Amount:       decimal.NewFromInt(12),
		ServiceStart: instant(t, "2025-01-15T00:00:00Z"),
		ServiceEnd:   instant(t, "2025-04-01T00:00:00Z"),
	}, testOptions())
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, "2025-03", months[2].String())
}

func TestVerifySum(t *testing.T) {
	fragments := []Fragment{
		{Amount: decimal.RequireFromString("1.5")},
		{Amount: decimal.RequireFromString("2.4999999")},
	}
	eps := decimal.RequireFromString("0.000001")

	assert.NoError(t, VerifySum(fragments, decimal.RequireFromString("3.9999999"), eps))
	assert.ErrorIs(t, VerifySum(fragments, decimal.RequireFromString("4.01"), eps), ErrSumMismatch)
}
