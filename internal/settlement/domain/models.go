package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	"gorm.io/datatypes"
)

type FlagKind string

const (
	FlagInvariantViolation     FlagKind = "invariant_violation"
	FlagContractConflict       FlagKind = "contract_conflict"
	FlagInputInvalid           FlagKind = "input_invalid"
	FlagReconciliationMismatch FlagKind = "reconciliation_mismatch"
	FlagProcessingError        FlagKind = "processing_error"
)

type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityWarning Severity = "warning"
)

// FlagDetail is the structured context stored with a flag.
type FlagDetail struct {
	Error       string   `json:"error,omitempty"`
	Computed    string   `json:"computed,omitempty"`
	Expected    string   `json:"expected,omitempty"`
	ContractIDs []string `json:"contract_ids,omitempty"`
	Reason      string   `json:"reason,omitempty"`
}

// SettlementFlag records a unit of work a run could not settle cleanly.
type SettlementFlag struct {
	ID         snowflake.ID                   `gorm:"primaryKey"`
	RunID      string                         `gorm:"type:text;not null;index"`
	Month      time.Time                      `gorm:"type:date;not null;index"`
	Kind       FlagKind                       `gorm:"type:text;not null"`
	Severity   Severity                       `gorm:"type:text;not null"`
	SourceType string                         `gorm:"type:text"`
	SourceID   *int64                         `gorm:""`
	NovelID    *int64                         `gorm:""`
	UserID     *int64                         `gorm:""`
	Role       string                         `gorm:"type:text"`
	Detail     datatypes.JSONType[FlagDetail] `gorm:"not null"`
	CreatedAt  time.Time                      `gorm:"not null"`
}

func (SettlementFlag) TableName() string { return "settlement_flags" }

type RunStatus string

const (
	RunStatusRunning            RunStatus = "running"
	RunStatusCompleted          RunStatus = "completed"
	RunStatusCompletedWithFlags RunStatus = "completed_with_flags"
	RunStatusFailed             RunStatus = "failed"
)

// SettlementRun is the audit record of one month run.
type SettlementRun struct {
	ID               string     `gorm:"primaryKey;type:text"`
	Month            time.Time  `gorm:"type:date;not null;index"`
	Status           RunStatus  `gorm:"type:text;not null"`
	Trigger          string     `gorm:"type:text;not null"`
	Actor            string     `gorm:"type:text"`
	AllowLegacy      bool       `gorm:"not null;default:false"`
	EventsSelected   int        `gorm:"not null;default:0"`
	EventsSettled    int        `gorm:"not null;default:0"`
	EventsRemoved    int        `gorm:"not null;default:0"`
	EventsFailed     int        `gorm:"not null;default:0"`
	FragmentsWritten int        `gorm:"not null;default:0"`
	AuthorsSettled   int        `gorm:"not null;default:0"`
	AuthorsFailed    int        `gorm:"not null;default:0"`
	NovelsAllocated  int        `gorm:"not null;default:0"`
	NovelsFailed     int        `gorm:"not null;default:0"`
	FlagCount        int        `gorm:"not null;default:0"`
	StartedAt        time.Time  `gorm:"not null"`
	FinishedAt       *time.Time `gorm:""`
	LastError        string     `gorm:"type:text"`
}

func (SettlementRun) TableName() string { return "settlement_runs" }

// RunOptions tune a single month run.
type RunOptions struct {
	AllowLegacy bool
	Trigger     string
	Actor       string
}

const (
	TriggerCLI       = "cli"
	TriggerScheduler = "scheduler"
	TriggerBackfill  = "backfill"
)

// Report summarizes a finished run for operators.
type Report struct {
	Run   SettlementRun
	Month calendar.Month
	Flags []SettlementFlag
}

func (r *Report) HasFatal() bool {
	for _, f := range r.Flags {
		if f.Severity == SeverityFatal {
			return true
		}
	}
	return false
}
