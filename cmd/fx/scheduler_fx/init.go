package scheduler_fx

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/internal/config"
	"passpay/internal/scheduler"
	"passpay/internal/services"
)

var Module = fx.Options(
	fx.Provide(provideSweeper),
	fx.Invoke(startSweeper),
)

func provideSweeper(cfg config.Config, reconciler services.ReconciliationService, log *zap.Logger) *scheduler.Sweeper {
	return scheduler.NewSweeper(reconciler, scheduler.Config{
		Interval:     cfg.Reconciliation.Interval,
		SweepTimeout: cfg.Reconciliation.SweepTimeout,
		ExpireAfter:  cfg.Reconciliation.ExpireAfter,
	}, log)
}

func startSweeper(lc fx.Lifecycle, cfg config.Config, sweeper *scheduler.Sweeper, log *zap.Logger) {
	if !cfg.Reconciliation.Enabled {
		log.Info("reconciliation scheduler disabled")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sweeper.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
