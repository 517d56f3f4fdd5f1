package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/clock"
	"github.com/kongfuworld/settlement/internal/config"
	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	"github.com/kongfuworld/settlement/internal/scheduler/guard"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobSettlePreviousMonth = "settle_previous_month"
	JobSettleCurrentMonth  = "settle_current_month"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     *config.SettlementConfigHolder
	Settlement settlementdomain.Service
	Stats      *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Scheduler struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	cfg        *config.SettlementConfigHolder
	settlement settlementdomain.Service
	stats      *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Config == nil || p.Settlement == nil {
		return nil, ErrInvalidConfig
	}
	stats := p.Stats
	if stats == nil {
		stats = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:        p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		genID:      p.GenID,
		clock:      p.Clock,
		cfg:        p.Config,
		settlement: p.Settlement,
		stats:      stats,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("job_run_id", run.runID),
	)
	s.stats.IncJobRun(name)

	err := fn(ctx)
	s.stats.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick retries the month
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		s.stats.IncJobTimeout(name)
	}
	s.stats.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	cfg := s.cfg.Get().Scheduler
	timeout := cfg.JobTimeout
	if timeout <= 0 {
		timeout = config.DefaultSettlementConfig().Scheduler.JobTimeout
	}

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobSettlePreviousMonth, s.isJobEnabled(JobSettlePreviousMonth), s.SettlePreviousMonthJob},
		{JobSettleCurrentMonth, cfg.SettleCurrentMonth && s.isJobEnabled(JobSettleCurrentMonth), s.SettleCurrentMonthJob},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, s.runJob(parent, job.Name, timeout, job.Run))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	interval := s.cfg.Get().Scheduler.RunInterval
	if interval <= 0 {
		interval = config.DefaultSettlementConfig().Scheduler.RunInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.stats.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	enabled := s.cfg.Get().Scheduler.EnabledJobs
	if len(enabled) == 0 {
		return true
	}
	for _, name := range enabled {
		if strings.EqualFold(strings.TrimSpace(name), jobName) {
			return true
		}
	}
	return false
}

// SettlePreviousMonthJob closes the month before now once its grace period
// has passed. A month that already has a finished run is left alone.
func (s *Scheduler) SettlePreviousMonthJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	month := calendar.MonthOf(now).Prev()
	run := jobRunFromContext(ctx)

	if err := guard.EnsureMonthCanClose(month, now, s.cfg.Get().Scheduler.Grace); err != nil {
		s.logSkip(ctx, month, err.Error())
		s.stats.IncRunOutcome(obsmetrics.RunOutcomeSkipped)
		return nil
	}

	last, err := s.settlement.LastSettled(ctx, month)
	if err != nil {
		return err
	}
	if last != nil {
		s.logSkip(ctx, month, "already_settled")
		s.stats.IncRunOutcome(obsmetrics.RunOutcomeSkipped)
		return nil
	}

	return s.settle(ctx, run, JobSettlePreviousMonth, month)
}

// SettleCurrentMonthJob produces a provisional settlement of the month in
// progress. Each tick reruns it, replacing the previous output.
func (s *Scheduler) SettleCurrentMonthJob(ctx context.Context) error {
	now := s.clock.Now().UTC()
	month := calendar.MonthOf(now)
	if err := guard.EnsureMonthOpen(month, now); err != nil {
		s.logSkip(ctx, month, err.Error())
		return nil
	}
	return s.settle(ctx, jobRunFromContext(ctx), JobSettleCurrentMonth, month)
}

func (s *Scheduler) settle(ctx context.Context, run *jobRun, job string, month calendar.Month) error {
	ctx = obscontext.WithMonth(ctx, month.String())
	report, err := s.settlement.SettleMonth(ctx, month, settlementdomain.RunOptions{
		Trigger: settlementdomain.TriggerScheduler,
		Actor:   "scheduler",
	})
	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.settle.failed", job, month, err)
		return err
	}
	run.AddProcessed(report.Run.EventsSettled)
	s.stats.AddBatchProcessed(job, "events", report.Run.EventsSettled)
	s.stats.AddBatchProcessed(job, "authors", report.Run.AuthorsSettled)
	s.stats.AddBatchProcessed(job, "novels", report.Run.NovelsAllocated)
	s.logSettled(ctx, job, report)
	return nil
}
