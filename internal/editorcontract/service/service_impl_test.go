package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/dbtest"
	"github.com/kongfuworld/settlement/internal/editorcontract/domain"
	"github.com/kongfuworld/settlement/pkg/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type contractFixture struct {
	t    *testing.T
	db   *gorm.DB
	node *snowflake.Node
}

func (f contractFixture) add(editorID int64, role catalogdomain.Role, share, start string, end string) domain.EditorContract {
	f.t.Helper()
	c := domain.EditorContract{
		ID:           f.node.Generate(),
		NovelID:      42,
		EditorID:     editorID,
		Role:         role,
		ShareType:    domain.ShareTypePercentOfBook,
		SharePercent: decimal.RequireFromString(share),
		Status:       domain.ContractStatusActive,
		StartDate:    day(f.t, start),
	}
	if end != "" {
		e := day(f.t, end)
		c.EndDate = &e
	}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.Parse(time.DateOnly, value)
	require.NoError(t, err)
	return d.UTC()
}

func setupResolver(t *testing.T) (domain.Service, contractFixture) {
	t.Helper()
	db := dbtest.Open(t)
	svc := NewService(Params{
		Log:       zap.NewNop(),
		Contracts: repository.ProvideStore[domain.EditorContract](db),
	})
	return svc, contractFixture{t: t, db: db, node: dbtest.Node(t)}
}

func november(t *testing.T) calendar.Month {
	t.Helper()
	m, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	return m
}

func TestResolvePicksOneContractPerRole(t *testing.T) {
	svc, f := setupResolver(t)
	chief := f.add(10, catalogdomain.RoleChiefEditor, "0.05", "2025-01-01", "")
	editor := f.add(11, catalogdomain.RoleEditor, "0.10", "2025-06-01", "2025-11-30")
	// Expired before the month.
	f.add(12, catalogdomain.RoleProofreader, "0.02", "2025-01-01", "2025-10-31")
	// Starts after the month.
	f.add(13, catalogdomain.RoleProofreader, "0.02", "2025-12-01", "")

	res, err := svc.Resolve(context.Background(), 42, november(t))
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	require.Len(t, res.Resolved, 2)
	assert.Equal(t, chief.ID, res.Resolved[catalogdomain.RoleChiefEditor].ID)
	assert.Equal(t, editor.ID, res.Resolved[catalogdomain.RoleEditor].ID)
	assert.Equal(t, []catalogdomain.Role{catalogdomain.RoleChiefEditor, catalogdomain.RoleEditor}, res.Roles())
}

func TestResolveMidMonthSwitchIsSequentialConflict(t *testing.T) {
	svc, f := setupResolver(t)
	a := f.add(11, catalogdomain.RoleEditor, "0.10", "2025-06-01", "2025-11-14")
	b := f.add(12, catalogdomain.RoleEditor, "0.12", "2025-11-15", "")

	res, err := svc.Resolve(context.Background(), 42, november(t))
	require.NoError(t, err)
	assert.Empty(t, res.Resolved)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, domain.ConflictSequential, res.Conflicts[0].Reason)
	assert.False(t, res.Conflicts[0].Overlapping())
	assert.ElementsMatch(t, []snowflake.ID{a.ID, b.ID}, res.Conflicts[0].ContractIDs)

	// December only sees the new contract.
	res, err = svc.Resolve(context.Background(), 42, november(t).Next())
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, b.ID, res.Resolved[catalogdomain.RoleEditor].ID)
}

func TestResolveOverlappingContracts(t *testing.T) {
	svc, f := setupResolver(t)
	f.add(11, catalogdomain.RoleEditor, "0.10", "2025-01-01", "")
	f.add(12, catalogdomain.RoleEditor, "0.10", "2025-11-10", "2025-11-20")
	f.add(10, catalogdomain.RoleChiefEditor, "0.05", "2025-01-01", "")

	res, err := svc.Resolve(context.Background(), 42, november(t))
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, catalogdomain.RoleEditor, res.Conflicts[0].Role)
	assert.True(t, res.Conflicts[0].Overlapping())
	assert.Contains(t, res.Resolved, catalogdomain.RoleChiefEditor)
}

func TestResolveSkipsInactiveAndUnsupportedContracts(t *testing.T) {
	svc, f := setupResolver(t)
	f.add(10, catalogdomain.RoleChiefEditor, "1.5", "2025-01-01", "")

	other := domain.EditorContract{
		ID:           f.node.Generate(),
		NovelID:      42,
		EditorID:     11,
		Role:         catalogdomain.RoleEditor,
		ShareType:    "fixed_fee",
		SharePercent: decimal.RequireFromString("0.1"),
		Status:       domain.ContractStatusActive,
		StartDate:    day(t, "2025-01-01"),
	}
	require.NoError(t, f.db.Create(&other).Error)
	inactive := other
	inactive.ID = f.node.Generate()
	inactive.ShareType = domain.ShareTypePercentOfBook
	inactive.Status = domain.ContractStatusInactive
	require.NoError(t, f.db.Create(&inactive).Error)

	res, err := svc.Resolve(context.Background(), 42, november(t))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ignored)
	assert.NotContains(t, res.Resolved, catalogdomain.RoleEditor)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, domain.ConflictInvalidShare, res.Conflicts[0].Reason)
}

func TestResolveRejectsInvalidNovel(t *testing.T) {
	svc, _ := setupResolver(t)
	_, err := svc.Resolve(context.Background(), 0, november(t))
	assert.ErrorIs(t, err, domain.ErrInvalidNovel)
}
