package controllers_fx

import (
	"go.uber.org/fx"

	"passpay/internal/api/controllers"
)

var Module = fx.Options(
	fx.Provide(controllers.NewPaymentController),
	fx.Provide(controllers.NewWebhookController),
	fx.Provide(controllers.NewPolicyController),
	fx.Provide(controllers.NewOperatorController),
	fx.Provide(controllers.NewReconciliationController))
