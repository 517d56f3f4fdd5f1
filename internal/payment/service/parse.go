package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/proration"
)

// ParseRawEvent validates an imported event at the boundary. Timestamps
// without an explicit offset are rejected rather than assigned a zone.
func ParseRawEvent(raw domain.RawEvent, opts proration.Options) (*domain.PaymentEvent, error) {
	sourceType := domain.SourceType(strings.ToLower(strings.TrimSpace(raw.SourceType)))
	if !sourceType.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSourceType, raw.SourceType)
	}
	if raw.SourceID <= 0 {
		return nil, domain.ErrInvalidSourceID
	}
	if raw.UserID <= 0 || raw.NovelID <= 0 {
		return nil, fmt.Errorf("%w: user and novel are required", domain.ErrMissingReference)
	}
	if sourceType == domain.SourceTypeUnlock && (raw.ChapterID == nil || *raw.ChapterID <= 0) {
		return nil, fmt.Errorf("%w: unlock without chapter", domain.ErrMissingReference)
	}
	if raw.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, raw.Amount)
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	switch currency {
	case domain.CurrencyUSD, domain.CurrencyKarma:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidCurrency, raw.Currency)
	}

	status := domain.EventStatus(strings.ToLower(strings.TrimSpace(raw.Status)))
	if status == "" {
		status = domain.EventStatusCompleted
	}
	switch status {
	case domain.EventStatusCompleted, domain.EventStatusRefunded, domain.EventStatusPending:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, raw.Status)
	}

	purchasedAt, err := calendar.ParseInstant(raw.PurchasedAt)
	if err != nil {
		return nil, fmt.Errorf("purchased_at: %w", err)
	}
	start, err := optionalInstant(raw.ServiceStart)
	if err != nil {
		return nil, fmt.Errorf("service_start: %w", err)
	}
	end, err := optionalInstant(raw.ServiceEnd)
	if err != nil {
		return nil, fmt.Errorf("service_end: %w", err)
	}

	ev := &domain.PaymentEvent{
		SourceType:       sourceType,
		SourceID:         raw.SourceID,
		UserID:           raw.UserID,
		NovelID:          raw.NovelID,
		ChapterID:        raw.ChapterID,
		Amount:           raw.Amount,
		Currency:         currency,
		PurchasedAt:      purchasedAt,
		ServiceStart:     start,
		ServiceEnd:       end,
		DurationDays:     raw.DurationDays,
		MembershipBefore: raw.MembershipBefore,
		MembershipAfter:  raw.MembershipAfter,
		Status:           status,
	}
	if _, err := proration.Months(proration.InputFromEvent(*ev, ev.Amount), opts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidServiceSpan, err)
	}
	return ev, nil
}

func optionalInstant(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := calendar.ParseInstant(value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
