package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	authorincomedomain "github.com/kongfuworld/settlement/internal/authorincome/domain"
	"github.com/kongfuworld/settlement/internal/calendar"
	catalogdomain "github.com/kongfuworld/settlement/internal/catalog/domain"
	"github.com/kongfuworld/settlement/internal/clock"
	"github.com/kongfuworld/settlement/internal/config"
	editorcontractdomain "github.com/kongfuworld/settlement/internal/editorcontract/domain"
	editorincomedomain "github.com/kongfuworld/settlement/internal/editorincome/domain"
	"github.com/kongfuworld/settlement/internal/lock"
	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	"github.com/kongfuworld/settlement/internal/observability/logger"
	obsmetrics "github.com/kongfuworld/settlement/internal/observability/metrics"
	paymentdomain "github.com/kongfuworld/settlement/internal/payment/domain"
	"github.com/kongfuworld/settlement/internal/settlement/domain"
	spendingdomain "github.com/kongfuworld/settlement/internal/spending/domain"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Config         *config.SettlementConfigHolder
	Repo           domain.Repository
	Locker         lock.Locker
	Payments       paymentdomain.Service
	Spending       spendingdomain.Service
	Catalog        catalogdomain.Service
	AuthorIncome   authorincomedomain.Service
	Contracts      editorcontractdomain.Service
	EditorIncome   editorincomedomain.Service
	ObsMetrics     *obsmetrics.Metrics          `optional:"true"`
	SchedulerStats *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	clock        clock.Clock
	cfg          *config.SettlementConfigHolder
	repo         domain.Repository
	locker       lock.Locker
	payments     paymentdomain.Service
	spending     spendingdomain.Service
	catalog      catalogdomain.Service
	authorIncome authorincomedomain.Service
	contracts    editorcontractdomain.Service
	editorIncome editorincomedomain.Service
	obsMetrics   *obsmetrics.Metrics
	runStats     *obsmetrics.SchedulerMetrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("settlement.service"),
		genID:        p.GenID,
		clock:        p.Clock,
		cfg:          p.Config,
		repo:         p.Repo,
		locker:       p.Locker,
		payments:     p.Payments,
		spending:     p.Spending,
		catalog:      p.Catalog,
		authorIncome: p.AuthorIncome,
		contracts:    p.Contracts,
		editorIncome: p.EditorIncome,
		obsMetrics:   p.ObsMetrics,
		runStats:     p.SchedulerStats,
	}
}

func (s *Service) SettleMonth(ctx context.Context, month calendar.Month, opts domain.RunOptions) (*domain.Report, error) {
	if month.IsZero() {
		return nil, domain.ErrInvalidMonth
	}
	cfg := s.cfg.Get()
	if err := s.admit(month, opts, cfg); err != nil {
		s.runStats.IncRunOutcome(obsmetrics.RunOutcomeSkipped)
		return nil, err
	}
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerCLI
	}

	run := &domain.SettlementRun{
		ID:          ulid.Make().String(),
		Month:       month.Start(),
		Status:      domain.RunStatusRunning,
		Trigger:     opts.Trigger,
		Actor:       opts.Actor,
		AllowLegacy: opts.AllowLegacy,
		StartedAt:   s.clock.Now(),
	}
	if err := s.repo.CreateRun(ctx, s.db, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	ctx = obscontext.WithRunID(ctx, run.ID)
	ctx = obscontext.WithMonth(ctx, month.String())
	ctx, span := otel.Tracer("settlement").Start(ctx, "settlement.run")
	span.SetAttributes(
		attribute.String("settlement.run_id", run.ID),
		attribute.String("settlement.month", month.String()),
	)
	defer span.End()

	log := logger.WithRun(s.log, run.ID, month.String())
	log.Info("settlement.run.start",
		zap.String("trigger", opts.Trigger),
		zap.Bool("allow_legacy", opts.AllowLegacy),
		zap.Int("workers", cfg.Workers),
	)

	flags := newFlagSet(run.ID, month, s.obsMetrics)
	runErr := s.settleEvents(ctx, log, month, cfg, run, flags)
	if runErr == nil {
		runErr = s.settleAggregates(ctx, log, month, cfg, run, flags)
	}

	report, err := s.finish(ctx, log, run, flags, runErr)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		return report, runErr
	}
	return report, err
}

// admit refuses months the engine must not recompute.
func (s *Service) admit(month calendar.Month, opts domain.RunOptions, cfg config.SettlementConfig) error {
	if current := calendar.MonthOf(s.clock.Now()); month.After(current) {
		return fmt.Errorf("%w: %s", domain.ErrFutureMonth, month)
	}
	if cutover, ok := cfg.LegacyCutover(); ok && month.Before(cutover) && !opts.AllowLegacy {
		return fmt.Errorf("%w: %s is before %s", domain.ErrLegacyMonth, month, cutover)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, run *domain.SettlementRun, flags *flagSet, runErr error) (*domain.Report, error) {
	items := flags.snapshot()
	for _, f := range items {
		f.ID = s.genID.Generate()
	}

	finished := s.clock.Now()
	run.FinishedAt = &finished
	run.FlagCount = len(items)
	switch {
	case runErr != nil:
		run.Status = domain.RunStatusFailed
		run.LastError = runErr.Error()
	case len(items) > 0:
		run.Status = domain.RunStatusCompletedWithFlags
	default:
		run.Status = domain.RunStatusCompleted
	}

	// The run record must be written even when the caller's context is gone.
	writeCtx := context.WithoutCancel(ctx)
	err := s.db.WithContext(writeCtx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertFlags(writeCtx, tx, items); err != nil {
			return err
		}
		return s.repo.FinishRun(writeCtx, tx, run)
	})
	if err != nil {
		log.Error("settlement.run.finish_failed", zap.Error(err))
	}

	s.runStats.IncRunOutcome(string(run.Status))
	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("events_selected", run.EventsSelected),
		zap.Int("events_settled", run.EventsSettled),
		zap.Int("events_removed", run.EventsRemoved),
		zap.Int("events_failed", run.EventsFailed),
		zap.Int("authors_settled", run.AuthorsSettled),
		zap.Int("authors_failed", run.AuthorsFailed),
		zap.Int("novels_allocated", run.NovelsAllocated),
		zap.Int("novels_failed", run.NovelsFailed),
		zap.Int("flags", run.FlagCount),
		zap.Duration("duration", finished.Sub(run.StartedAt)),
	}
	if runErr != nil {
		log.Error("settlement.run.failed", append(fields, zap.Error(runErr))...)
	} else {
		log.Info("settlement.run.done", fields...)
	}

	report := &domain.Report{Run: *run, Month: calendar.MonthOf(run.Month)}
	for _, f := range items {
		report.Flags = append(report.Flags, *f)
	}
	return report, err
}

func (s *Service) Backfill(ctx context.Context, from, to calendar.Month, opts domain.RunOptions) ([]*domain.Report, error) {
	months, err := calendar.Range(from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidBackfill, err)
	}
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerBackfill
	}

	reports := make([]*domain.Report, 0, len(months))
	var errs []error
	for _, month := range months {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.SettleMonth(ctx, month, opts)
		if report != nil {
			reports = append(reports, report)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", month, err))
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
		}
	}
	return reports, errors.Join(errs...)
}

func (s *Service) LastSettled(ctx context.Context, month calendar.Month) (*domain.SettlementRun, error) {
	return s.repo.LatestRun(ctx, s.db, month.Start(), []domain.RunStatus{
		domain.RunStatusCompleted,
		domain.RunStatusCompletedWithFlags,
	})
}

func (s *Service) GetReport(ctx context.Context, runID string) (*domain.Report, error) {
	run, err := s.repo.GetRun(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, domain.ErrRunNotFound
	}
	flags, err := s.repo.ListFlags(ctx, s.db, runID)
	if err != nil {
		return nil, err
	}
	return &domain.Report{Run: *run, Month: calendar.MonthOf(run.Month), Flags: flags}, nil
}
