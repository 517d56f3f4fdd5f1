package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/kongfuworld/settlement/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config configures the zap logger.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	// Output is a zap sink path. The CLI keeps stdout free for reports and PDFs.
	Output string
	Debug  bool

	SamplingInitial     int
	SamplingThereafter  int
	SamplingWindow      time.Duration
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger. Info and debug entries are sampled; warnings
// and errors, which carry settlement flags, always pass through.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	raw := strings.TrimSpace(cfg.Level)
	if raw == "" {
		raw = "info"
	}
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
	}

	output := strings.TrimSpace(cfg.Output)
	if output == "" {
		output = "stderr"
	}
	sink, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("open log output %q: %w", output, err)
	}

	encoder := newEncoder(cfg.Format)
	quiet := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l < zapcore.WarnLevel && level.Enabled(l)
	})
	loud := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= zapcore.WarnLevel && level.Enabled(l)
	})

	initial, thereafter, window := samplingOrDefault(cfg)
	core := zapcore.NewTee(
		zapcore.NewSamplerWithOptions(zapcore.NewCore(encoder, sink, quiet), window, initial, thereafter),
		zapcore.NewCore(encoder, sink, loud),
	)

	options := []zap.Option{zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(sink)))}
	if cfg.IncludeCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "settlement"
	}
	logger := zap.New(core, options...).With(
		zap.String("service", serviceName),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(logger)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = logger.Sync()
				return nil
			},
		})
	}
	return logger, nil
}

func newEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func samplingOrDefault(cfg Config) (int, int, time.Duration) {
	initial, thereafter, window := cfg.SamplingInitial, cfg.SamplingThereafter, cfg.SamplingWindow
	if initial <= 0 {
		initial = 100
	}
	if thereafter <= 0 {
		thereafter = 100
	}
	if window <= 0 {
		window = time.Second
	}
	return initial, thereafter, window
}

// WithContext adds the correlation fields carried by ctx to base.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}

	fields := make([]zap.Field, 0, 7)
	if v := obscontext.RequestIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("request_id", v))
	}
	if v := obscontext.RunIDFromContext(ctx); v != "" {
		fields = append(fields, zap.String("run_id", v))
	}
	if v := obscontext.MonthFromContext(ctx); v != "" {
		fields = append(fields, zap.String("settlement_month", v))
	}
	if kind, id := obscontext.ActorFromContext(ctx); kind != "" || id != "" {
		fields = append(fields, zap.String("actor_type", kind), zap.String("actor_id", id))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// WithRun scopes a logger to one settlement run.
func WithRun(log *zap.Logger, runID, month string) *zap.Logger {
	if log == nil {
		return nil
	}
	return log.With(
		zap.String("run_id", strings.TrimSpace(runID)),
		zap.String("settlement_month", strings.TrimSpace(month)),
	)
}
