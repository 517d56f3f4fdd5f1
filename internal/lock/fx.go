package lock

import (
	"context"
	"fmt"

	"github.com/kongfuworld/settlement/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	AppConfig config.Config
	Config    *config.SettlementConfigHolder
	Log       *zap.Logger
}

// New builds the locker selected by the settlement config.
func New(p Params) (Locker, error) {
	cfg := p.Config.Get().Lock
	log := p.Log.Named("lock")

	switch cfg.Backend {
	case config.LockBackendMemory, "":
		log.Info("lock.backend", zap.String("backend", BackendMemory), zap.Bool("single_process", true))
		return NewMemoryLocker(), nil
	case config.LockBackendRedis:
		if p.AppConfig.RedisAddr == "" {
			return nil, fmt.Errorf("%w: REDIS_ADDR is empty", ErrNotConfigured)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     p.AppConfig.RedisAddr,
			Password: p.AppConfig.RedisPassword,
			DB:       p.AppConfig.RedisDB,
		})
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
		log.Info("lock.backend", zap.String("backend", BackendRedis), zap.String("addr", p.AppConfig.RedisAddr))
		return NewRedisLocker(client, cfg.TTL, cfg.RetryInterval, log), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", cfg.Backend)
	}
}
