package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/config"
	editorcontractdomain "github.com/kongfuworld/settlement/internal/editorcontract/domain"
	"github.com/shopspring/decimal"
)

// IncomeSource tells which revenue channels fed an editor row.
type IncomeSource string

const (
	IncomeSourceUnlock       IncomeSource = "unlock"
	IncomeSourceSubscription IncomeSource = "subscription"
	IncomeSourceMixed        IncomeSource = "mixed"
)

// EditorMonthlyIncome is one editor's income from one novel and role in a month.
type EditorMonthlyIncome struct {
	ID                   snowflake.ID       `gorm:"primaryKey"`
	EditorID             int64              `gorm:"not null;uniqueIndex:ux_editor_monthly_incomes_key,priority:1"`
	NovelID              int64              `gorm:"not null;uniqueIndex:ux_editor_monthly_incomes_key,priority:2;index:ix_editor_monthly_incomes_novel_month,priority:1"`
	Month                time.Time          `gorm:"type:date;not null;uniqueIndex:ux_editor_monthly_incomes_key,priority:3;index:ix_editor_monthly_incomes_novel_month,priority:2"`
	Role                 catalogdomain.Role `gorm:"type:text;not null;uniqueIndex:ux_editor_monthly_incomes_key,priority:4"`
	SourceType           IncomeSource       `gorm:"type:text;not null"`
	ContractID           snowflake.ID       `gorm:"not null"`
	ChapterCountTotal    int                `gorm:"not null;default:0"`
	ChapterCountEditor   int                `gorm:"not null;default:0"`
	GrossBookIncome      decimal.Decimal    `gorm:"type:numeric(20,8);not null"`
	ContractSharePercent decimal.Decimal    `gorm:"type:numeric(9,6);not null"`
	EditorSharePercent   decimal.Decimal    `gorm:"type:numeric(20,10);not null"`
	EditorIncome         decimal.Decimal    `gorm:"type:numeric(20,8);not null"`
	CreatedAt            time.Time          `gorm:"not null"`
}

func (EditorMonthlyIncome) TableName() string { return "editor_monthly_incomes" }

// RowKey identifies an editor row within a (novel, month) set.
type RowKey struct {
	EditorID int64
	Role     catalogdomain.Role
}

func (r EditorMonthlyIncome) Key() RowKey {
	return RowKey{EditorID: r.EditorID, Role: r.Role}
}

// AllocationInput carries everything the allocator needs for one novel month.
type AllocationInput struct {
	NovelID    int64
	Month      calendar.Month
	Resolution *editorcontractdomain.Resolution
	// AuthorSide is the novel's amount in the author's breakdown.
	AuthorSide decimal.Decimal
	// Config is the run's snapshot; epsilon and scale come from here.
	Config config.SettlementConfig
}

// AllocationResult reports the committed editor rows of one novel month.
type AllocationResult struct {
	NovelID       int64
	Month         calendar.Month
	Gross         decimal.Decimal
	EditorTotal   decimal.Decimal
	Rows          []EditorMonthlyIncome
	Removed       int64
	Normalized    bool
	UnassignedUSD decimal.Decimal
}
