package scheduler

import (
	"context"

	"github.com/kongfuworld/settlement/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
)

// Start runs the scheduler loop for the lifetime of the fx app when it is
// enabled in settlement.yml.
func Start(lc fx.Lifecycle, cfg *config.SettlementConfigHolder, sched *Scheduler) {
	if !cfg.Get().Scheduler.Enabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sched.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
