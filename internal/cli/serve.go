package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/kongfuworld/settlement/internal/scheduler"
	"github.com/kongfuworld/settlement/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

// ServeOptions is the long-running app: the engine, the month scheduler and
// the ops HTTP endpoints.
func ServeOptions() fx.Option {
	return fx.Options(
		Modules(),
		scheduler.Module,
		fx.Invoke(scheduler.Start),
		server.Module,
		fx.WithLogger(ZapEventLogger),
	)
}

func newServeCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the month scheduler and ops endpoints until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app := fx.New(ServeOptions(), fx.Decorate(g.decorateConfig))
			if err := app.Err(); err != nil {
				return err
			}
			if err := app.Start(ctx); err != nil {
				return err
			}
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
			defer cancel()
			return app.Stop(stopCtx)
		},
	}
}
