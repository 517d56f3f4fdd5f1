package proration

import (
	"fmt"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// Options are the settlement parameters the splitter depends on.
type Options struct {
	AmountScale           int32
	Epsilon               decimal.Decimal
	DurationToleranceDays int
}

func OptionsFrom(cfg config.SettlementConfig) Options {
	return Options{
		AmountScale:           cfg.AmountScale,
		Epsilon:               cfg.EpsilonDecimal(),
		DurationToleranceDays: cfg.DurationToleranceDays,
	}
}

// Input is a payment already valued in the settlement currency.
type Input struct {
	SourceType   paymentdomain.SourceType
	Amount       decimal.Decimal
	PurchasedAt  time.Time
	ServiceStart *time.Time
	ServiceEnd   *time.Time
	DurationDays int
}

func InputFromEvent(ev paymentdomain.PaymentEvent, valued decimal.Decimal) Input {
	return Input{
		SourceType:   ev.SourceType,
		Amount:       valued,
		PurchasedAt:  ev.PurchasedAt,
		ServiceStart: ev.ServiceStart,
		ServiceEnd:   ev.ServiceEnd,
		DurationDays: ev.DurationDays,
	}
}

// Fragment is one month's share of a payment.
type Fragment struct {
	Month          calendar.Month
	Amount         decimal.Decimal
	OverlapSeconds int64
	OverlapDays    decimal.Decimal
	SpendTime      time.Time
}

// Split attributes the payment to every UTC month its service interval
// touches. The chronologically last fragment takes the remainder so the
// fragments always sum to the payment amount.
func Split(in Input, opts Options) ([]Fragment, error) {
	if in.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrNegativeAmount, in.Amount)
	}
	amount := in.Amount.Round(opts.AmountScale)

	iv, instant, err := serviceSpan(in, opts)
	if err != nil {
		return nil, err
	}
	if instant {
		return []Fragment{{
			Month:       calendar.MonthOf(iv.Start),
			Amount:      amount,
			OverlapDays: decimal.Zero,
			SpendTime:   iv.Start,
		}}, nil
	}

	total := decimal.NewFromInt(int64(iv.Duration()))
	months := calendar.MonthsTouched(iv)
	fragments := make([]Fragment, 0, len(months))
	allocated := decimal.Zero
	for i, m := range months {
		overlap := calendar.Overlap(iv, m.Interval())
		if overlap <= 0 {
			continue
		}
		spend := m.Start()
		if iv.Start.After(spend) {
			spend = iv.Start
		}
		frag := Fragment{
			Month:          m,
			OverlapSeconds: int64(overlap / time.Second),
			OverlapDays:    calendar.Days(overlap).Round(6),
			SpendTime:      spend,
		}
		if i == len(months)-1 {
			frag.Amount = amount.Sub(allocated)
		} else {
			frag.Amount = amount.Mul(decimal.NewFromInt(int64(overlap))).Div(total).Round(opts.AmountScale)
			allocated = allocated.Add(frag.Amount)
		}
		fragments = append(fragments, frag)
	}

	if len(fragments) == 0 {
		return nil, fmt.Errorf("%w: no month overlaps the service interval", ErrInvalidInterval)
	}
	if last := fragments[len(fragments)-1]; last.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: remainder %s for %s", ErrNegativeFragment, last.Amount, last.Month)
	}
	if err := VerifySum(fragments, amount, opts.Epsilon); err != nil {
		return nil, err
	}
	return fragments, nil
}

// Months lists the settlement months a payment contributes to.
func Months(in Input, opts Options) ([]calendar.Month, error) {
	iv, instant, err := serviceSpan(in, opts)
	if err != nil {
		return nil, err
	}
	if instant {
		return []calendar.Month{calendar.MonthOf(iv.Start)}, nil
	}
	return calendar.MonthsTouched(iv), nil
}

// VerifySum checks the exact-sum invariant within epsilon.
func VerifySum(fragments []Fragment, expected, epsilon decimal.Decimal) error {
	sum := decimal.Zero
	for _, f := range fragments {
		sum = sum.Add(f.Amount)
	}
	if sum.Sub(expected).Abs().GreaterThan(epsilon) {
		return fmt.Errorf("%w: fragments sum %s, expected %s", ErrSumMismatch, sum, expected)
	}
	return nil
}

// serviceSpan validates the payment's timing and returns its interval.
// instant reports a zero-duration payment that bypasses proration.
func serviceSpan(in Input, opts Options) (calendar.Interval, bool, error) {
	switch in.SourceType {
	case paymentdomain.SourceTypeUnlock:
		if in.ServiceStart != nil || in.ServiceEnd != nil {
			return calendar.Interval{}, false, fmt.Errorf("%w: unlock carries a service interval", ErrInvalidInterval)
		}
		if in.PurchasedAt.IsZero() {
			return calendar.Interval{}, false, fmt.Errorf("%w: missing purchase instant", ErrInvalidInterval)
		}
		at := in.PurchasedAt.UTC()
		return calendar.Interval{Start: at, End: at}, true, nil
	case paymentdomain.SourceTypeSubscription:
		if in.ServiceStart == nil || in.ServiceEnd == nil {
			return calendar.Interval{}, false, fmt.Errorf("%w: subscription without service bounds", ErrInvalidInterval)
		}
		iv, err := calendar.NewInterval(*in.ServiceStart, *in.ServiceEnd)
		if err != nil {
			return calendar.Interval{}, false, fmt.Errorf("%w: %v", ErrInvalidInterval, err)
		}
		if iv.Empty() {
			return iv, true, nil
		}
		if in.DurationDays > 0 {
			days := calendar.Days(iv.Duration())
			drift := days.Sub(decimal.NewFromInt(int64(in.DurationDays))).Abs()
			if drift.GreaterThan(decimal.NewFromInt(int64(opts.DurationToleranceDays))) {
				return calendar.Interval{}, false, fmt.Errorf("%w: interval spans %s days, event declares %d",
					ErrDurationMismatch, days.Round(3), in.DurationDays)
			}
		}
		return iv, false, nil
	default:
		return calendar.Interval{}, false, fmt.Errorf("%w: %q", ErrUnknownSourceType, in.SourceType)
	}
}
