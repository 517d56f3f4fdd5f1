package domain

import (
	"context"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/shopspring/decimal"
)

type Service interface {
	// Import validates raw events and stores the new ones. Already stored
	// events are left untouched.
	Import(ctx context.Context, raws []RawEvent) ([]ImportResult, error)
	// ValueInUSD converts the event amount at the rate in force at purchase,
	// rounded to the scale of cfg.
	ValueInUSD(ctx context.Context, event PaymentEvent, cfg config.SettlementConfig) (decimal.Decimal, error)
	EventsTouchingMonth(ctx context.Context, month calendar.Month, cfg config.SettlementConfig) ([]PaymentEvent, error)
	FindBySources(ctx context.Context, keys []SourceKey) ([]PaymentEvent, error)
}
