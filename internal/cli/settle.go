package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/kongfuworld/settlement/internal/calendar"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"github.com/spf13/cobra"
)

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		month       string
		allowLegacy bool
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Settle one month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := calendar.ParseMonth(month)
			if err != nil {
				return fmt.Errorf("--month: %w", err)
			}
			var svc settlementdomain.Service
			return withApp(cmd.Context(), g, func(ctx context.Context) error {
				report, err := svc.SettleMonth(ctx, m, settlementdomain.RunOptions{
					AllowLegacy: allowLegacy,
					Trigger:     settlementdomain.TriggerCLI,
					Actor:       actor,
				})
				if err != nil {
					return err
				}
				printReport(cmd.OutOrStdout(), report)
				return exitForReport(report)
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&month, "month", "", "settlement month (YYYY-MM)")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy", false, "allow months before the legacy cutover")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "operator recorded on the run")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newBackfillCommand(g *globalFlags) *cobra.Command {
	var (
		from, to    string
		allowLegacy bool
		actor       string
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Settle an inclusive range of months in order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := calendar.ParseMonth(from)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			end, err := calendar.ParseMonth(to)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			var svc settlementdomain.Service
			return withApp(cmd.Context(), g, func(ctx context.Context) error {
				reports, err := svc.Backfill(ctx, start, end, settlementdomain.RunOptions{
					AllowLegacy: allowLegacy,
					Trigger:     settlementdomain.TriggerBackfill,
					Actor:       actor,
				})
				for _, report := range reports {
					printReport(cmd.OutOrStdout(), report)
				}
				if err != nil {
					return err
				}
				for _, report := range reports {
					if err := exitForReport(report); err != nil {
						return err
					}
				}
				return nil
			}, &svc)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first month (YYYY-MM)")
	cmd.Flags().StringVar(&to, "to", "", "last month, inclusive (YYYY-MM)")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy", false, "allow months before the legacy cutover")
	cmd.Flags().StringVar(&actor, "actor", defaultActor(), "operator recorded on the runs")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// ErrRunFailed is returned when a run finished without settling cleanly so
// scripts can tell a flagged run from a clean one.
type ErrRunFailed struct {
	RunID  string
	Status settlementdomain.RunStatus
}

func (e *ErrRunFailed) Error() string {
	return fmt.Sprintf("run %s finished with status %s", e.RunID, e.Status)
}

func exitForReport(report *settlementdomain.Report) error {
	if report == nil || report.Run.Status == settlementdomain.RunStatusCompleted {
		return nil
	}
	return &ErrRunFailed{RunID: report.Run.ID, Status: report.Run.Status}
}

func printReport(w io.Writer, report *settlementdomain.Report) {
	if report == nil {
		return
	}
	run := report.Run
	fmt.Fprintf(w, "run %s  month %s  status %s\n", run.ID, report.Month, run.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  events\tselected %d\tsettled %d\tremoved %d\tfailed %d\n",
		run.EventsSelected, run.EventsSettled, run.EventsRemoved, run.EventsFailed)
	fmt.Fprintf(tw, "  aggregates\tauthors %d\tauthors failed %d\tnovels %d\tnovels failed %d\n",
		run.AuthorsSettled, run.AuthorsFailed, run.NovelsAllocated, run.NovelsFailed)
	_ = tw.Flush()

	if len(report.Flags) == 0 {
		return
	}
	fmt.Fprintf(w, "  flags (%d):\n", len(report.Flags))
	for _, f := range report.Flags {
		fmt.Fprintf(w, "    [%s] %s%s\n", f.Severity, f.Kind, flagSubject(f))
	}
}

func flagSubject(f settlementdomain.SettlementFlag) string {
	var parts []string
	if f.SourceID != nil {
		parts = append(parts, fmt.Sprintf("%s:%d", f.SourceType, *f.SourceID))
	}
	if f.NovelID != nil {
		parts = append(parts, fmt.Sprintf("novel=%d", *f.NovelID))
	}
	if f.UserID != nil {
		parts = append(parts, fmt.Sprintf("user=%d", *f.UserID))
	}
	if f.Role != "" {
		parts = append(parts, "role="+f.Role)
	}
	detail := f.Detail.Data()
	if detail.Error != "" {
		parts = append(parts, "error="+detail.Error)
	}
	if detail.Computed != "" || detail.Expected != "" {
		parts = append(parts, fmt.Sprintf("computed=%s expected=%s", detail.Computed, detail.Expected))
	}
	if len(detail.ContractIDs) > 0 {
		parts = append(parts, "contracts="+strings.Join(detail.ContractIDs, ","))
	}
	if len(parts) == 0 {
		return ""
	}
	return " " + strings.Join(parts, " ")
}
