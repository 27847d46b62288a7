package services_fx

import (
	"go.uber.org/fx"

	"passpay/internal/clock"
	"passpay/internal/config"
	"passpay/internal/infra"
	"passpay/internal/services"
)

var Module = fx.Options(
	fx.Provide(
		provideClock,
		provideIDs,
		provideReconcileConfig,
		services.NewPolicyAllocator,
		services.NewActivationService,
		services.NewReconciliationService,
		services.NewPaymentService,
		services.NewPolicyService,
		services.NewOperatorService,
	),
)

func provideClock() clock.Clock {
	return clock.SystemClock{}
}

func provideIDs(cfg config.Config) (infra.IDGenerator, error) {
	return infra.NewIDGenerator(cfg.NodeID)
}

func provideReconcileConfig(cfg config.Config) services.ReconcileConfig {
	return services.ReconcileConfig{
		RecencyWindow: cfg.Reconciliation.RecencyWindow,
		Workers:       cfg.Reconciliation.Workers,
	}
}
