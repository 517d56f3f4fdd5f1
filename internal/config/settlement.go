package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kongfuworld/settlement/internal/calendar"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// SettlementConfig carries every monetary and calendar parameter a settlement
// run depends on. Components receive a snapshot; nothing reads the environment.
type SettlementConfig struct {
	Currency              string          `mapstructure:"currency"`
	AmountScale           int32           `mapstructure:"amountScale"`
	Epsilon               float64         `mapstructure:"epsilon"`
	Workers               int             `mapstructure:"workers"`
	DurationToleranceDays int             `mapstructure:"durationToleranceDays"`
	LegacyCutoverMonth    string          `mapstructure:"legacyCutoverMonth"`
	Lock                  LockConfig      `mapstructure:"lock"`
	Scheduler             SchedulerConfig `mapstructure:"scheduler"`
}

type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retryInterval"`
}

type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RunInterval        time.Duration `mapstructure:"runInterval"`
	Grace              time.Duration `mapstructure:"grace"`
	JobTimeout         time.Duration `mapstructure:"jobTimeout"`
	SettleCurrentMonth bool          `mapstructure:"settleCurrentMonth"`
	EnabledJobs        []string      `mapstructure:"enabledJobs"`
}

// LockBackendMemory serializes aggregation inside one process only. Two
// settlement processes running the same month at once need LockBackendRedis.
const (
	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		Currency:              "USD",
		AmountScale:           8,
		Epsilon:               1e-6,
		Workers:               8,
		DurationToleranceDays: 1,
		Lock: LockConfig{
			Backend:       LockBackendMemory,
			TTL:           5 * time.Minute,
			RetryInterval: 200 * time.Millisecond,
		},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			RunInterval: time.Hour,
			Grace:       24 * time.Hour,
			JobTimeout:  30 * time.Minute,
		},
	}
}

// EpsilonDecimal is the reconciliation tolerance in currency units.
func (c SettlementConfig) EpsilonDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.Epsilon)
}

// LegacyCutover returns the first month computed under the current schema.
func (c SettlementConfig) LegacyCutover() (calendar.Month, bool) {
	raw := strings.TrimSpace(c.LegacyCutoverMonth)
	if raw == "" {
		return calendar.Month{}, false
	}
	m, err := calendar.ParseMonth(raw)
	if err != nil {
		return calendar.Month{}, false
	}
	return m, true
}

type SettlementConfigHolder struct {
	current atomic.Value // holds SettlementConfig
}

// StaticSettlementConfig wraps a fixed config, used by tests and one-shot commands.
func StaticSettlementConfig(cfg SettlementConfig) *SettlementConfigHolder {
	holder := &SettlementConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewSettlementConfigHolder(app Config) (*SettlementConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("settlement")
	v.SetConfigType("yml")
	if app.SettlementConfigDir != "" {
		v.AddConfigPath(app.SettlementConfigDir)
	}
	v.AddConfigPath("/etc/settlement")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SETTLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSettlementConfig()
	v.SetDefault("settlement.currency", defaults.Currency)
	v.SetDefault("settlement.amountScale", defaults.AmountScale)
	v.SetDefault("settlement.epsilon", defaults.Epsilon)
	v.SetDefault("settlement.workers", defaults.Workers)
	v.SetDefault("settlement.durationToleranceDays", defaults.DurationToleranceDays)
	v.SetDefault("settlement.lock.backend", defaults.Lock.Backend)
	v.SetDefault("settlement.lock.ttl", defaults.Lock.TTL)
	v.SetDefault("settlement.lock.retryInterval", defaults.Lock.RetryInterval)
	v.SetDefault("settlement.scheduler.enabled", defaults.Scheduler.Enabled)
	v.SetDefault("settlement.scheduler.runInterval", defaults.Scheduler.RunInterval)
	v.SetDefault("settlement.scheduler.grace", defaults.Scheduler.Grace)
	v.SetDefault("settlement.scheduler.jobTimeout", defaults.Scheduler.JobTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	cfg, err := decodeSettlementConfig(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateSettlementConfig(cfg); err != nil {
		return nil, err
	}

	holder := &SettlementConfigHolder{}
	holder.current.Store(cfg)

	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log := zap.L().Named("config.settlement")
		updated, err := decodeSettlementConfig(v)
		if err != nil {
			log.Warn("settlement config reload failed", zap.Error(err))
			return
		}
		if err := ValidateSettlementConfig(updated); err != nil {
			log.Warn("invalid settlement config ignored", zap.Error(err))
			return
		}
		holder.Store(updated)
		log.Info("settlement config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// decodeSettlementConfig goes through AllSettings so nested defaults are
// merged with a partial settlement.yml.
func decodeSettlementConfig(v *viper.Viper) (SettlementConfig, error) {
	var wrapper struct {
		Settlement SettlementConfig `mapstructure:"settlement"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return SettlementConfig{}, err
	}
	return wrapper.Settlement, nil
}

func (h *SettlementConfigHolder) Get() SettlementConfig {
	return h.current.Load().(SettlementConfig)
}

// Store swaps the current config. Runs already in flight keep their snapshot.
func (h *SettlementConfigHolder) Store(cfg SettlementConfig) {
	h.current.Store(cfg)
}

func ValidateSettlementConfig(cfg SettlementConfig) error {
	if strings.TrimSpace(cfg.Currency) == "" {
		return errors.New("settlement.currency cannot be empty")
	}
	if cfg.AmountScale < 2 || cfg.AmountScale > 12 {
		return fmt.Errorf("settlement.amountScale must be within [2, 12], got %d", cfg.AmountScale)
	}
	if cfg.Epsilon <= 0 || cfg.Epsilon >= 0.01 {
		return fmt.Errorf("settlement.epsilon must be within (0, 0.01), got %v", cfg.Epsilon)
	}
	if cfg.Workers <= 0 {
		return errors.New("settlement.workers must be positive")
	}
	if cfg.DurationToleranceDays < 0 {
		return errors.New("settlement.durationToleranceDays cannot be negative")
	}
	if raw := strings.TrimSpace(cfg.LegacyCutoverMonth); raw != "" {
		if _, err := calendar.ParseMonth(raw); err != nil {
			return fmt.Errorf("settlement.legacyCutoverMonth: %w", err)
		}
	}
	switch cfg.Lock.Backend {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("settlement.lock.backend %q is not supported", cfg.Lock.Backend)
	}
	if cfg.Lock.Backend == LockBackendRedis && cfg.Lock.TTL <= 0 {
		return errors.New("settlement.lock.ttl must be positive for redis locks")
	}
	return nil
}
