package repositories_fx

import (
	"go.uber.org/fx"

	"passpay/internal/repositories"
)

var Module = fx.Provide(
	repositories.NewTransactionRepository,
	repositories.NewPaymentRepository,
	repositories.NewSubscriptionRepository,
	repositories.NewPolicyRepository,
)
