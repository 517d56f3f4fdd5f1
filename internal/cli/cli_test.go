package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/scheduler"
	"github.com/kongfuworld/settlement/internal/server"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"github.com/kongfuworld/settlement/internal/statement"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"gorm.io/datatypes"
)

func TestModulesGraphIsComplete(t *testing.T) {
	var (
		svc      settlementdomain.Service
		payments paymentdomain.Service
		renderer *statement.Renderer
	)
	require.NoError(t, fx.ValidateApp(Modules(), fx.Populate(&svc, &payments, &renderer)))
}

func TestServeGraphIsComplete(t *testing.T) {
	var (
		sched *scheduler.Scheduler
		srv   *server.Server
	)
	require.NoError(t, fx.ValidateApp(
		Modules(),
		scheduler.Module,
		fx.Provide(server.NewServer),
		fx.Provide(server.NewEngine),
		fx.Populate(&sched, &srv),
	))
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "backfill", "import", "statement", "serve"}, names)
}

func TestCommandsRejectBadFlagsBeforeWiring(t *testing.T) {
	cases := map[string][]string{
		"run bad month":        {"run", "--month", "2025-13"},
		"backfill bad from":    {"backfill", "--from", "nope", "--to", "2025-10"},
		"statement no party":   {"statement", "--month", "2025-11"},
		"statement both party": {"statement", "--month", "2025-11", "--author", "7", "--editor", "11"},
		"run missing month":    {"run"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			root := NewRootCommand()
			root.SetArgs(args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			assert.Error(t, root.Execute())
		})
	}
}

func TestDecorateConfig(t *testing.T) {
	g := &globalFlags{configDir: " /etc/custom ", dbType: "sqlite", dbPath: "/tmp/s.db"}
	cfg := g.decorateConfig(config.Config{DBType: "postgres", DBPath: "x.db"})
	assert.Equal(t, "/etc/custom", cfg.SettlementConfigDir)
	assert.Equal(t, "sqlite", cfg.DBType)
	assert.Equal(t, "/tmp/s.db", cfg.DBPath)

	untouched := (&globalFlags{}).decorateConfig(config.Config{DBType: "postgres"})
	assert.Equal(t, "postgres", untouched.DBType)
}

func TestReadEventsArrayAndLines(t *testing.T) {
	array := `
	[
	  {"source_type":"unlock","source_id":1,"user_id":5,"novel_id":42,"chapter_id":900,"amount":"0.35","currency":"USD","purchased_at":"2025-11-03T10:00:00Z"},
	  {"source_type":"subscription","source_id":2,"user_id":5,"novel_id":42,"amount":9.99,"currency":"USD","purchased_at":"2025-11-02T22:03:15Z","service_start":"2025-11-02T22:03:15Z","service_end":"2025-12-02T22:03:15Z","duration_days":30}
	]`
	raws, err := readEvents(strings.NewReader(array))
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "0.35", raws[0].Amount.String())
	require.NotNil(t, raws[0].ChapterID)
	assert.Equal(t, int64(900), *raws[0].ChapterID)
	assert.Equal(t, 30, raws[1].DurationDays)

	lines := `{"source_type":"unlock","source_id":1,"novel_id":42,"amount":"1","currency":"KARMA","purchased_at":"2025-11-03T10:00:00Z"}
{"source_type":"unlock","source_id":2,"novel_id":42,"amount":"2","currency":"KARMA","purchased_at":"2025-11-04T10:00:00Z"}
`
	raws, err = readEvents(strings.NewReader(lines))
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, int64(2), raws[1].SourceID)
}

func TestReadEventsErrors(t *testing.T) {
	_, err := readEvents(strings.NewReader("  \n "))
	assert.ErrorIs(t, err, ErrNoEvents)

	_, err = readEvents(strings.NewReader("[]"))
	assert.ErrorIs(t, err, ErrNoEvents)

	_, err = readEvents(strings.NewReader(`{"source_id": "abc"}`))
	assert.Error(t, err)
}

func TestSummarizeImport(t *testing.T) {
	var out bytes.Buffer
	err := summarizeImport(&out, []paymentdomain.ImportResult{
		{SourceType: "unlock", SourceID: 1, Created: true},
		{SourceType: "unlock", SourceID: 2},
		{SourceType: "subscription", SourceID: 3, Err: errors.New("invalid_interval")},
	})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "rejected subscription:3: invalid_interval")
	assert.Contains(t, out.String(), "imported 1, already present 1, rejected 1")

	out.Reset()
	assert.NoError(t, summarizeImport(&out, []paymentdomain.ImportResult{{Created: true}}))
}

func TestPrintReportAndExitStatus(t *testing.T) {
	month, err := calendar.ParseMonth("2025-11")
	require.NoError(t, err)
	source := int64(501)
	novel := int64(42)

	report := &settlementdomain.Report{
		Month: month,
		Run: settlementdomain.SettlementRun{
			ID:             "01JRUN",
			Status:         settlementdomain.RunStatusCompletedWithFlags,
			EventsSelected: 2,
			EventsSettled:  1,
			EventsFailed:   1,
			StartedAt:      time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC),
		},
		Flags: []settlementdomain.SettlementFlag{
			{
				Kind:       settlementdomain.FlagInputInvalid,
				Severity:   settlementdomain.SeverityFatal,
				SourceType: "subscription",
				SourceID:   &source,
				Detail:     datatypes.NewJSONType(settlementdomain.FlagDetail{Error: "karma_rate_not_found"}),
			},
			{
				Kind:     settlementdomain.FlagReconciliationMismatch,
				Severity: settlementdomain.SeverityFatal,
				NovelID:  &novel,
				Detail:   datatypes.NewJSONType(settlementdomain.FlagDetail{Computed: "10.1", Expected: "10"}),
			},
		},
	}

	var out bytes.Buffer
	printReport(&out, report)
	text := out.String()
	assert.Contains(t, text, "run 01JRUN  month 2025-11  status completed_with_flags")
	assert.Contains(t, text, "flags (2):")
	assert.Contains(t, text, "[fatal] input_invalid subscription:501 error=karma_rate_not_found")
	assert.Contains(t, text, "novel=42 computed=10.1 expected=10")

	var failed *ErrRunFailed
	require.ErrorAs(t, exitForReport(report), &failed)
	assert.Equal(t, "01JRUN", failed.RunID)

	report.Run.Status = settlementdomain.RunStatusCompleted
	assert.NoError(t, exitForReport(report))
}
