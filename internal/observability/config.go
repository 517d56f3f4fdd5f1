package observability

import (
	"strings"

	"github.com/kongfuworld/settlement/internal/config"
	"github.com/spf13/viper"
)

// Config holds logging and OpenTelemetry settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	LogOutput string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig reads observability settings from the environment, falling back
// to the process config. OTEL_* names follow the OpenTelemetry conventions.
func LoadConfig(cfg config.Config) Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("DEPLOYMENT_ENV", cfg.Environment)
	v.SetDefault("SERVICE_VERSION", cfg.AppVersion)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("LOG_OUTPUT", "stderr")
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")
	v.SetDefault("OTEL_SAMPLING_RATIO", 0.1)

	protocol := v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")
	if traces := strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL")); traces != "" {
		protocol = traces
	}

	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "settlement"
	}

	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(v.GetString("DEPLOYMENT_ENV")),
		Version:              strings.TrimSpace(v.GetString("SERVICE_VERSION")),
		LogLevel:             lower(v.GetString("LOG_LEVEL")),
		LogFormat:            lower(v.GetString("LOG_FORMAT")),
		LogOutput:            strings.TrimSpace(v.GetString("LOG_OUTPUT")),
		OtelEnabled:          v.GetBool("OTEL_ENABLED"),
		OtelExporterEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OtelExporterProtocol: lower(protocol),
		OtelSamplingRatio:    v.GetFloat64("OTEL_SAMPLING_RATIO"),
	}
}

// Debug reports whether verbose diagnostics are wanted.
func (c Config) Debug() bool {
	if lower(c.LogLevel) == "debug" {
		return true
	}
	switch lower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func lower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
