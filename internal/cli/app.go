package cli

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/kongfuworld/settlement/internal/authorincome"
	"github.com/kongfuworld/settlement/internal/catalog"
	"github.com/kongfuworld/settlement/internal/clock"
	"github.com/kongfuworld/settlement/internal/config"
	"github.com/kongfuworld/settlement/internal/editorcontract"
	"github.com/kongfuworld/settlement/internal/editorincome"
	"github.com/kongfuworld/settlement/internal/lock"
	"github.com/kongfuworld/settlement/internal/migration"
	"github.com/kongfuworld/settlement/internal/observability"
	"github.com/kongfuworld/settlement/internal/payment"
	"github.com/kongfuworld/settlement/internal/settlement"
	"github.com/kongfuworld/settlement/internal/spending"
	"github.com/kongfuworld/settlement/internal/statement"
	"github.com/kongfuworld/settlement/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Modules wires the settlement engine without any long-running surface.
func Modules() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		lock.Module,

		catalog.Module,
		payment.Module,
		spending.Module,
		authorincome.Module,
		editorcontract.Module,
		editorincome.Module,
		settlement.Module,
		statement.Module,
	)
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.SnowflakeNode, err)
	}
	return node, nil
}

// ZapEventLogger routes fx lifecycle events through the app logger.
func ZapEventLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log.Named("fx")}
}

// withApp starts a short-lived fx app, runs fn, and stops the app.
func withApp(ctx context.Context, g *globalFlags, fn func(context.Context) error, targets ...any) error {
	opts := []fx.Option{
		Modules(),
		fx.Decorate(g.decorateConfig),
		fx.Populate(targets...),
	}
	if g.verbose {
		opts = append(opts, fx.WithLogger(ZapEventLogger))
	} else {
		opts = append(opts, fx.NopLogger)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}

	runErr := fn(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}
