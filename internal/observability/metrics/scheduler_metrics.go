package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"
)

const (
	RunOutcomeCompleted          = "completed"
	RunOutcomeCompletedWithFlags = "completed_with_flags"
	RunOutcomeFailed             = "failed"
	RunOutcomeSkipped            = "skipped"
)

// SchedulerMetrics captures settlement scheduler and run health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
	runOutcomes    *prometheus.CounterVec
	lockWait       *prometheus.HistogramVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

// NewSchedulerMetrics builds scheduler metrics on a caller-owned registerer.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, cfg)
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "settlement"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settlement_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "settlement_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.05, 0.25, 1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settlement_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs that hit their soft timeout.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settlement_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	batchProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settlement_scheduler_batch_processed_total",
		Help:        "Items processed by scheduler jobs.",
		ConstLabels: constLabels,
	}, []string{"job", "resource"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "settlement_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
		ConstLabels: constLabels,
	})
	runOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "settlement_runs_total",
		Help:        "Settlement month runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "settlement_lock_wait_seconds",
		Help:        "Time spent waiting for per-(novel, month) aggregation locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		ConstLabels: constLabels,
	}, []string{"backend"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		batchProcessed,
		runLoopLag,
		runOutcomes,
		lockWait,
	)

	return &SchedulerMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		batchProcessed: batchProcessed,
		runLoopLag:     runLoopLag,
		runOutcomes:    runOutcomes,
		lockWait:       lockWait,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for the scheduler job.
func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddBatchProcessed increments the processed counter for a resource by count.
func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m == nil || count <= 0 || m.batchProcessed == nil {
		return
	}
	m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil || m.runLoopLag == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// IncRunOutcome counts a finished settlement month run.
func (m *SchedulerMetrics) IncRunOutcome(outcome string) {
	if m == nil || m.runOutcomes == nil {
		return
	}
	m.runOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveLockWait records how long an aggregation lock took to acquire.
func (m *SchedulerMetrics) ObserveLockWait(backend string, duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.WithLabelValues(backend).Observe(duration.Seconds())
}

// ClassifySchedulerErrorType returns a low-cardinality error type for logging.
func ClassifySchedulerErrorType(err error) string {
	if err == nil {
		return SchedulerErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return SchedulerErrorTypeDB
	}
	return SchedulerErrorTypeBusinessRule
}

// IsSchedulerErrorRetryable reports whether the scheduler error should be retried.
func IsSchedulerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBLockTimeout(err) || isSerializationFailure(err)
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return SchedulerJobReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return SchedulerJobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return SchedulerJobReasonUniqueViolation
	}
	return SchedulerJobReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
