package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/kongfuworld/settlement/internal/config"
	obslogger "github.com/kongfuworld/settlement/internal/observability/logger"
	obstracing "github.com/kongfuworld/settlement/internal/observability/tracing"
	"github.com/kongfuworld/settlement/internal/scheduler"
	settlementdomain "github.com/kongfuworld/settlement/internal/settlement/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("ops.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the operator-facing router. It serves health and metrics
// and read-only run reports; it is not a public API.
func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log.Named("ops.http")))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.OpsHTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("ops server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine     *gin.Engine
	db         *gorm.DB
	settlement settlementdomain.Service
	scheduler  *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	DB         *gorm.DB
	Settlement settlementdomain.Service
	Scheduler  *scheduler.Scheduler `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		db:         p.DB,
		settlement: p.Settlement,
		scheduler:  p.Scheduler,
	}
	svc.registerRoutes()
	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.Health)

	ops := s.engine.Group("/ops")
	ops.GET("/runs/:id", s.GetRun)
	ops.GET("/months/:month", s.GetMonth)
}

func (s *Server) Health(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"scheduler": s.scheduler != nil,
	})
}

func (s *Server) GetRun(c *gin.Context) {
	report, err := s.settlement.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newRunResponse(report)})
}

func (s *Server) GetMonth(c *gin.Context) {
	month, err := calendar.ParseMonth(c.Param("month"))
	if err != nil {
		AbortWithError(c, newValidationError("month", "invalid_month", "month must be YYYY-MM"))
		return
	}
	run, err := s.settlement.LastSettled(c.Request.Context(), month)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if run == nil {
		AbortWithError(c, ErrNotFound)
		return
	}
	report, err := s.settlement.GetReport(c.Request.Context(), run.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newRunResponse(report)})
}

type flagResponse struct {
	Kind       string                      `json:"kind"`
	Severity   string                      `json:"severity"`
	SourceType string                      `json:"source_type,omitempty"`
	SourceID   *int64                      `json:"source_id,omitempty"`
	NovelID    *int64                      `json:"novel_id,omitempty"`
	UserID     *int64                      `json:"user_id,omitempty"`
	Role       string                      `json:"role,omitempty"`
	Detail     settlementdomain.FlagDetail `json:"detail"`
}

type runResponse struct {
	ID               string         `json:"id"`
	Month            string         `json:"month"`
	Status           string         `json:"status"`
	Trigger          string         `json:"trigger"`
	Actor            string         `json:"actor,omitempty"`
	EventsSelected   int            `json:"events_selected"`
	EventsSettled    int            `json:"events_settled"`
	EventsRemoved    int            `json:"events_removed"`
	EventsFailed     int            `json:"events_failed"`
	FragmentsWritten int            `json:"fragments_written"`
	AuthorsSettled   int            `json:"authors_settled"`
	NovelsAllocated  int            `json:"novels_allocated"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       *time.Time     `json:"finished_at,omitempty"`
	LastError        string         `json:"last_error,omitempty"`
	Flags            []flagResponse `json:"flags"`
}

func newRunResponse(report *settlementdomain.Report) runResponse {
	run := report.Run
	resp := runResponse{
		ID:               run.ID,
		Month:            calendar.MonthOf(run.Month).String(),
		Status:           string(run.Status),
		Trigger:          run.Trigger,
		Actor:            run.Actor,
		EventsSelected:   run.EventsSelected,
		EventsSettled:    run.EventsSettled,
		EventsRemoved:    run.EventsRemoved,
		EventsFailed:     run.EventsFailed,
		FragmentsWritten: run.FragmentsWritten,
		AuthorsSettled:   run.AuthorsSettled,
		NovelsAllocated:  run.NovelsAllocated,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		LastError:        run.LastError,
		Flags:            make([]flagResponse, 0, len(report.Flags)),
	}
	for _, f := range report.Flags {
		resp.Flags = append(resp.Flags, flagResponse{
			Kind:       string(f.Kind),
			Severity:   string(f.Severity),
			SourceType: f.SourceType,
			SourceID:   f.SourceID,
			NovelID:    f.NovelID,
			UserID:     f.UserID,
			Role:       f.Role,
			Detail:     f.Detail.Data(),
		})
	}
	return resp
}
