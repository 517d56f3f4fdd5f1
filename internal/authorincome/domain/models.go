package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PayoutStatus is owned by the payout collaborator.
type PayoutStatus string

const (
	PayoutStatusPending PayoutStatus = "pending"
	PayoutStatusPartial PayoutStatus = "partial"
	PayoutStatusPaid    PayoutStatus = "paid"
)

// NovelBreakdown maps novel id (decimal string) to the author-side amount.
type NovelBreakdown map[string]decimal.Decimal

// AuthorMonthlyIncome is an author's settled income for one month.
type AuthorMonthlyIncome struct {
	ID             snowflake.ID                       `gorm:"primaryKey"`
	UserID         int64                              `gorm:"not null;uniqueIndex:ux_author_monthly_incomes_user_month,priority:1"`
	Month          time.Time                          `gorm:"type:date;not null;uniqueIndex:ux_author_monthly_incomes_user_month,priority:2;index"`
	BaseIncome     decimal.Decimal                    `gorm:"type:numeric(20,8);not null"`
	ReferralIncome decimal.Decimal                    `gorm:"type:numeric(20,8);not null"`
	TotalIncome    decimal.Decimal                    `gorm:"type:numeric(20,8);not null"`
	NovelBreakdown datatypes.JSONType[NovelBreakdown] `gorm:"not null"`
	Currency       string                             `gorm:"type:text;not null"`
	PaidAmount     decimal.Decimal                    `gorm:"type:numeric(20,8);not null;default:0"`
	PayoutStatus   PayoutStatus                       `gorm:"type:text;not null;default:'pending'"`
	CreatedAt      time.Time                          `gorm:"not null"`
}

func (AuthorMonthlyIncome) TableName() string { return "author_monthly_incomes" }

// NovelAmount returns the author-side amount recorded for a novel.
func (a AuthorMonthlyIncome) NovelAmount(novelID int64) (decimal.Decimal, bool) {
	amount, ok := a.NovelBreakdown.Data()[NovelKey(novelID)]
	return amount, ok
}

// ReferralIncome is supplied by the referral collaborator and added to the
// author's total as is.
type ReferralIncome struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	UserID       int64           `gorm:"not null;uniqueIndex:ux_referral_incomes_key,priority:1"`
	Month        time.Time       `gorm:"type:date;not null;uniqueIndex:ux_referral_incomes_key,priority:2;index"`
	ReferralType string          `gorm:"type:text;not null;uniqueIndex:ux_referral_incomes_key,priority:3"`
	Amount       decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	CreatedAt    time.Time       `gorm:"not null"`
}

func (ReferralIncome) TableName() string { return "referral_incomes" }

// AggregateResult reports one author recompute.
type AggregateResult struct {
	Income  *AuthorMonthlyIncome
	Month   calendar.Month
	Novels  []int64
	Created bool
}

// MonthAuthors lists what a month recompute has to visit.
type MonthAuthors struct {
	Authors []int64
	// Unowned holds ledger novels the catalog has no author for. Their
	// revenue lands in no author row until the catalog is fixed.
	Unowned []UnownedNovel
}

type UnownedNovel struct {
	NovelID int64
	Gross   decimal.Decimal
}
