package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/shopspring/decimal"
)

// SpendingFragment is one payment's share of one settlement month.
type SpendingFragment struct {
	ID              snowflake.ID             `gorm:"primaryKey"`
	SourceType      paymentdomain.SourceType `gorm:"type:text;not null;uniqueIndex:ux_spending_fragments_source_month,priority:1"`
	SourceID        int64                    `gorm:"not null;uniqueIndex:ux_spending_fragments_source_month,priority:2"`
	SettlementMonth time.Time                `gorm:"type:date;not null;uniqueIndex:ux_spending_fragments_source_month,priority:3;index:ix_spending_fragments_novel_month,priority:2"`
	UserID          int64                    `gorm:"not null;index"`
	NovelID         int64                    `gorm:"not null;index:ix_spending_fragments_novel_month,priority:1"`
	ChapterID       *int64                   `gorm:"index"`
	Amount          decimal.Decimal          `gorm:"type:numeric(20,8);not null"`
	Currency        string                   `gorm:"type:text;not null"`
	OverlapSeconds  int64                    `gorm:"not null;default:0"`
	OverlapDays     decimal.Decimal          `gorm:"type:numeric(12,6);not null"`
	SpendTime       time.Time                `gorm:"not null"`
	CreatedAt       time.Time                `gorm:"not null"`
}

func (SpendingFragment) TableName() string { return "spending_fragments" }

func (f SpendingFragment) Month() calendar.Month {
	return calendar.MonthOf(f.SettlementMonth)
}

func (f SpendingFragment) Key() paymentdomain.SourceKey {
	return paymentdomain.SourceKey{SourceType: f.SourceType, SourceID: f.SourceID}
}

// NovelTotals splits a novel's monthly gross by revenue channel.
type NovelTotals struct {
	NovelID      int64
	Unlock       decimal.Decimal
	Subscription decimal.Decimal
}

func (t NovelTotals) Gross() decimal.Decimal {
	return t.Unlock.Add(t.Subscription)
}

// WriteResult summarizes one atomic per-event write.
type WriteResult struct {
	Written int
	Removed int64
	Months  []calendar.Month
}
