package cmd

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"

	"github.com/activityhub/event-processor/config"
	"github.com/activityhub/event-processor/infra/server/ops"
	"github.com/activityhub/event-processor/internal/adapter/mongodb"
	"github.com/activityhub/event-processor/internal/domain/registry"
	kafkahandler "github.com/activityhub/event-processor/internal/handler/kafka"
	"github.com/activityhub/event-processor/internal/service/projection"
)

// NewApp wires the processor. Module order fixes lifecycle order: the store
// connects before the consumer initializes, and teardown runs in reverse —
// the consumer drains and stops before the store disconnects.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
		),
		mongodb.Module,
		registry.Module,
		projection.Module,
		kafkahandler.Module,
		ops.Module,
	)
}

// ProvideLogger builds the process-wide structured JSON logger at the
// configured verbosity and installs it as the slog default.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.App.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
