package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
)

// Role is an editorial function paid from a novel's revenue.
type Role string

const (
	RoleChiefEditor Role = "chief_editor"
	RoleEditor      Role = "editor"
	RoleProofreader Role = "proofreader"
)

// Roles lists every role in allocation order.
func Roles() []Role {
	return []Role{RoleChiefEditor, RoleEditor, RoleProofreader}
}

func (r Role) Valid() bool {
	switch r {
	case RoleChiefEditor, RoleEditor, RoleProofreader:
		return true
	default:
		return false
	}
}

// Novel is owned by the content collaborator; the engine only reads it.
type Novel struct {
	ID           int64     `gorm:"primaryKey;autoIncrement:false"`
	AuthorUserID int64     `gorm:"not null;index"`
	Title        string    `gorm:"type:text"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (Novel) TableName() string { return "novels" }

// ChapterAssignment names the editor handling one role on one chapter.
type ChapterAssignment struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	NovelID   int64        `gorm:"not null;index"`
	ChapterID int64        `gorm:"not null;uniqueIndex:ux_chapter_assignments_chapter_role,priority:1"`
	Role      Role         `gorm:"type:text;not null;uniqueIndex:ux_chapter_assignments_chapter_role,priority:2"`
	EditorID  int64        `gorm:"not null"`
	CreatedAt time.Time    `gorm:"not null"`
}

func (ChapterAssignment) TableName() string { return "chapter_assignments" }

// ChapterWorkload counts the chapters one editor handled for a role in a month.
type ChapterWorkload struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	NovelID      int64        `gorm:"not null;uniqueIndex:ux_chapter_workloads_key,priority:1"`
	Month        time.Time    `gorm:"type:date;not null;uniqueIndex:ux_chapter_workloads_key,priority:2"`
	Role         Role         `gorm:"type:text;not null;uniqueIndex:ux_chapter_workloads_key,priority:3"`
	EditorID     int64        `gorm:"not null;uniqueIndex:ux_chapter_workloads_key,priority:4"`
	ChapterCount int          `gorm:"not null;default:0"`
}

func (ChapterWorkload) TableName() string { return "chapter_workloads" }

// NovelChapterTotal is the number of chapters counted for a novel in a month.
type NovelChapterTotal struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	NovelID      int64        `gorm:"not null;uniqueIndex:ux_novel_chapter_totals_key,priority:1"`
	Month        time.Time    `gorm:"type:date;not null;uniqueIndex:ux_novel_chapter_totals_key,priority:2"`
	ChapterCount int          `gorm:"not null;default:0"`
}

func (NovelChapterTotal) TableName() string { return "novel_chapter_totals" }

// EditorCount is one editor's chapter count for a role.
type EditorCount struct {
	EditorID     int64
	ChapterCount int
}

// Workload is the chapter split of a novel for one month.
type Workload struct {
	NovelID int64
	Month   calendar.Month
	Total   int
	ByRole  map[Role][]EditorCount
}

// RoleCount sums the chapter counts recorded for a role.
func (w Workload) RoleCount(role Role) int {
	total := 0
	for _, c := range w.ByRole[role] {
		total += c.ChapterCount
	}
	return total
}

// Assignments maps chapter id to the editor holding each role.
type Assignments map[int64]map[Role]int64

func (a Assignments) Editor(chapterID int64, role Role) (int64, bool) {
	roles, ok := a[chapterID]
	if !ok {
		return 0, false
	}
	id, ok := roles[role]
	return id, ok && id != 0
}
