package logger_fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/internal/config"
	"passpay/internal/observability/logger"
	"passpay/internal/observability/metrics"
)

var Module = fx.Provide(
	provideLogger,
	provideMetrics,
)

func provideLogger(lc fx.Lifecycle, cfg config.Config) (*zap.Logger, error) {
	log, err := logger.New(cfg.Environment, cfg.ServiceName)
	if err != nil {
		return nil, err
	}
	undo := zap.ReplaceGlobals(log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			undo()
			_ = log.Sync()
			return nil
		},
	})
	return log, nil
}

func provideMetrics(cfg config.Config) *metrics.ReconcileMetrics {
	return metrics.ReconcileWithConfig(metrics.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
}
