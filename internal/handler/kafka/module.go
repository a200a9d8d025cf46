package kafka

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/activityhub/event-processor/internal/domain/registry"
)

var Module = fx.Module("kafka-consumer",
	fx.Provide(
		prometheus.NewRegistry,
		NewMetrics,
		NewConsumer,
	),
	fx.Invoke(Start),
)

// Start ties the consumer to the fx lifecycle: initialize and launch the
// loop on start, drain and summarize on stop. A fatal loop error shuts the
// whole application down with exit code 1.
func Start(lc fx.Lifecycle, c *Consumer, reg *registry.Registry, logger *slog.Logger, shutdowner fx.Shutdowner) {
	var cancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := c.Initialize(ctx); err != nil {
				return err
			}

			logger.Info("handlers_ready", "event_types", reg.EventTypes())

			runCtx, cancelRun := context.WithCancel(context.Background())
			cancel = cancelRun
			go func() {
				if err := c.Run(runCtx); err != nil {
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			return c.Shutdown(ctx)
		},
	})
}
