package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/shopspring/decimal"
)

type ShareType string

const ShareTypePercentOfBook ShareType = "percent_of_book"

type ContractStatus string

const (
	ContractStatusActive   ContractStatus = "active"
	ContractStatusInactive ContractStatus = "inactive"
)

// EditorContract grants a role a fraction of a novel's monthly gross.
// StartDate and EndDate are inclusive calendar days.
type EditorContract struct {
	ID           snowflake.ID       `gorm:"primaryKey"`
	NovelID      int64              `gorm:"not null;index:ix_editor_contracts_novel_role,priority:1"`
	EditorID     int64              `gorm:"not null;index"`
	Role         catalogdomain.Role `gorm:"type:text;not null;index:ix_editor_contracts_novel_role,priority:2"`
	ShareType    ShareType          `gorm:"type:text;not null"`
	SharePercent decimal.Decimal    `gorm:"type:numeric(9,6);not null"`
	Status       ContractStatus     `gorm:"type:text;not null"`
	StartDate    time.Time          `gorm:"type:date;not null"`
	EndDate      *time.Time         `gorm:"type:date"`
	CreatedAt    time.Time          `gorm:"not null"`
}

func (EditorContract) TableName() string { return "editor_contracts" }

// Covers reports whether the inclusive contract window intersects month.
func (c EditorContract) Covers(month calendar.Month) bool {
	if !c.StartDate.Before(month.End()) {
		return false
	}
	return c.EndDate == nil || !c.EndDate.Before(month.Start())
}

// Overlaps reports whether two contract windows share at least one day.
func (c EditorContract) Overlaps(other EditorContract) bool {
	if c.EndDate != nil && c.EndDate.Before(other.StartDate) {
		return false
	}
	if other.EndDate != nil && other.EndDate.Before(c.StartDate) {
		return false
	}
	return true
}

type ConflictReason string

const (
	// ConflictOverlapping: two contracts for the role are valid on the same day.
	ConflictOverlapping ConflictReason = "overlapping_contracts"
	// ConflictSequential: the role switched contracts within the month.
	ConflictSequential ConflictReason = "sequential_contracts"
	// ConflictInvalidShare: share_percent outside [0, 1].
	ConflictInvalidShare ConflictReason = "invalid_share_percent"
)

type Conflict struct {
	Role        catalogdomain.Role
	ContractIDs []snowflake.ID
	Reason      ConflictReason
}

func (c Conflict) Overlapping() bool {
	return c.Reason == ConflictOverlapping
}

// Resolution is the contract set governing one novel in one month.
type Resolution struct {
	NovelID   int64
	Month     calendar.Month
	Resolved  map[catalogdomain.Role]EditorContract
	Conflicts []Conflict
	Ignored   int
}

// Roles returns resolved roles in allocation order.
func (r Resolution) Roles() []catalogdomain.Role {
	out := make([]catalogdomain.Role, 0, len(r.Resolved))
	for _, role := range catalogdomain.Roles() {
		if _, ok := r.Resolved[role]; ok {
			out = append(out, role)
		}
	}
	return out
}

func (r Resolution) Empty() bool {
	return len(r.Resolved) == 0 && len(r.Conflicts) == 0
}
