package scheduler

import (
	"context"
	"time"

	"github.com/kongfuworld/settlement/internal/calendar"
	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	obslogger "github.com/kongfuworld/settlement/internal/observability/logger"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"go.uber.org/zap"
)

type jobRun struct {
	job            string
	runID          string
	startedAt      time.Time
	processedCount int
	errorCount     int
}

type jobRunKey struct{}

func (r *jobRun) AddProcessed(count int) {
	if r == nil || count <= 0 {
		return
	}
	r.processedCount += count
}

func (r *jobRun) IncError() {
	if r == nil {
		return
	}
	r.errorCount++
}

func (s *Scheduler) ensureJobRun(ctx context.Context, job string) (context.Context, *jobRun, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := jobRunFromContext(ctx); existing != nil {
		return ctx, existing, false
	}
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, jobRunKey{}, run)
	return ctx, run, true
}

func jobRunFromContext(ctx context.Context) *jobRun {
	if ctx == nil {
		return nil
	}
	if run, ok := ctx.Value(jobRunKey{}).(*jobRun); ok {
		return run
	}
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	if run == nil {
		return
	}
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("job_run_id", run.runID),
		zap.Int64("duration_ms", s.clock.Now().Sub(run.startedAt).Milliseconds()),
		zap.Int("processed_count", run.processedCount),
		zap.Int("error_count", run.errorCount),
	}
	log := s.logger(ctx)
	if run.errorCount > 0 {
		log.Warn("scheduler.job.finish", fields...)
		return
	}
	log.Info("scheduler.job.finish", fields...)
}

func (s *Scheduler) logSkip(ctx context.Context, month calendar.Month, reason string) {
	s.logger(obscontext.WithMonth(ctx, month.String())).Debug("scheduler.month.skipped",
		zap.String("reason", reason),
	)
}

func (s *Scheduler) logSettled(ctx context.Context, job string, report *settlementdomain.Report) {
	fields := []zap.Field{
		zap.String("job", job),
		zap.String("settlement_run_id", report.Run.ID),
		zap.String("status", string(report.Run.Status)),
		zap.Int("events_settled", report.Run.EventsSettled),
		zap.Int("flag_count", len(report.Flags)),
	}
	log := s.logger(ctx)
	if report.Run.Status != settlementdomain.RunStatusCompleted {
		log.Warn("scheduler.month.settled", fields...)
		return
	}
	log.Info("scheduler.month.settled", fields...)
}

func (s *Scheduler) logSchedulerError(ctx context.Context, run *jobRun, msg string, job string, month calendar.Month, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.IncError()
	baseFields := []zap.Field{
		zap.String("job", job),
		zap.String("month", month.String()),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.String("error", err.Error()),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	}
	s.logger(ctx).Error(msg, append(baseFields, fields...)...)
}
