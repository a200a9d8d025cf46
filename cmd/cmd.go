package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/activityhub/event-processor/config"
)

const ServiceName = "event-processor"

var (
	version    = "0.0.0"
	commit     = "hash"
	commitDate = time.Now().String()
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "CDC outbox event processor: Kafka in, MongoDB projections out",
		Version: version,
		Commands: []*cli.Command{
			serverCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the event processing loop",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config_file",
				Usage: "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.LoadConfig(c.String("config_file"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}

			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			// Blocks until SIGINT/SIGTERM or a fatal loop error invokes the
			// shutdowner.
			sig := <-app.Wait()
			slog.Info("shutdown_signal_received",
				"signal", fmt.Sprint(sig.Signal),
				"exit_code", sig.ExitCode,
			)

			stopCtx, cancel := context.WithTimeout(
				context.Background(),
				time.Duration(cfg.App.ShutdownTimeoutSeconds)*time.Second,
			)
			defer cancel()

			if err := app.Stop(stopCtx); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			if sig.ExitCode != 0 {
				return cli.Exit("fatal processing error", sig.ExitCode)
			}

			slog.Info("application_stopped")
			return nil
		},
	}
}
