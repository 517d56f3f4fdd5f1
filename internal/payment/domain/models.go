package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SourceType identifies the revenue channel of a payment event.
type SourceType string

const (
	SourceTypeUnlock       SourceType = "unlock"       // single chapter purchase, zero duration
	SourceTypeSubscription SourceType = "subscription" // time-boxed access, prorated by month
)

func (t SourceType) Valid() bool {
	return t == SourceTypeUnlock || t == SourceTypeSubscription
}

type EventStatus string

const (
	EventStatusCompleted EventStatus = "completed"
	EventStatusRefunded  EventStatus = "refunded"
	EventStatusPending   EventStatus = "pending"
)

const (
	CurrencyUSD   = "USD"
	CurrencyKarma = "KARMA"
)

// PaymentEvent is a settled purchase supplied by the payment collaborator.
// Rows are never mutated by the settlement engine.
type PaymentEvent struct {
	ID               snowflake.ID    `gorm:"primaryKey"`
	SourceType       SourceType      `gorm:"type:text;not null;uniqueIndex:ux_payment_events_source,priority:1"`
	SourceID         int64           `gorm:"not null;uniqueIndex:ux_payment_events_source,priority:2"`
	UserID           int64           `gorm:"not null;index"`
	NovelID          int64           `gorm:"not null;index"`
	ChapterID        *int64          `gorm:"index"`
	Amount           decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Currency         string          `gorm:"type:text;not null"`
	PurchasedAt      time.Time       `gorm:"not null;index"`
	ServiceStart     *time.Time      `gorm:"index"`
	ServiceEnd       *time.Time      `gorm:"index"`
	DurationDays     int             `gorm:"not null;default:0"`
	MembershipBefore datatypes.JSON
	MembershipAfter  datatypes.JSON
	Status           EventStatus     `gorm:"type:text;not null;index"`
	CreatedAt        time.Time       `gorm:"not null"`
}

func (PaymentEvent) TableName() string { return "payment_events" }

// SourceKey is the stable identity of an event across collaborators.
type SourceKey struct {
	SourceType SourceType
	SourceID   int64
}

func (e PaymentEvent) Key() SourceKey {
	return SourceKey{SourceType: e.SourceType, SourceID: e.SourceID}
}

// KarmaRate values the in-app currency in USD over an effective window.
type KarmaRate struct {
	ID            snowflake.ID    `gorm:"primaryKey"`
	USDPerKarma   decimal.Decimal `gorm:"column:usd_per_karma;type:numeric(20,10);not null"`
	EffectiveFrom time.Time       `gorm:"not null;index"`
	EffectiveTo   *time.Time      `gorm:"index"`
	CreatedAt     time.Time       `gorm:"not null"`
}

func (KarmaRate) TableName() string { return "karma_rates" }

// RawEvent is the import format: timestamps are RFC3339 strings that must
// carry an explicit offset.
type RawEvent struct {
	SourceType       string          `json:"source_type"`
	SourceID         int64           `json:"source_id"`
	UserID           int64           `json:"user_id"`
	NovelID          int64           `json:"novel_id"`
	ChapterID        *int64          `json:"chapter_id,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	PurchasedAt      string          `json:"purchased_at"`
	ServiceStart     string          `json:"service_start,omitempty"`
	ServiceEnd       string          `json:"service_end,omitempty"`
	DurationDays     int             `json:"duration_days,omitempty"`
	MembershipBefore datatypes.JSON  `json:"membership_snapshot_before,omitempty"`
	MembershipAfter  datatypes.JSON  `json:"membership_snapshot_after,omitempty"`
	Status           string          `json:"status,omitempty"`
}

// ImportResult reports the outcome of one raw event.
type ImportResult struct {
	SourceType string
	SourceID   int64
	Created    bool
	Err        error
}
