package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/cmd/fx/alert_fx"
	"passpay/cmd/fx/config_fx"
	"passpay/cmd/fx/db_fx"
	"passpay/cmd/fx/gateway_fx"
	"passpay/cmd/fx/logger_fx"
	"passpay/cmd/fx/repositories_fx"
	"passpay/cmd/fx/services_fx"
	"passpay/internal/services"
)

type deps struct {
	fx.In

	Log            *zap.Logger
	Reconciliation services.ReconciliationService
	Activation     services.ActivationService
	Operators      services.OperatorService
}

// withServices builds the service graph without the HTTP server or the
// scheduler, runs fn and tears everything down.
func withServices(ctx context.Context, fn func(ctx context.Context, d deps) error) error {
	var d deps
	app := fx.New(
		config_fx.Module,
		logger_fx.Module,
		db_fx.Module,
		gateway_fx.Module,
		repositories_fx.Module,
		alert_fx.Module,
		services_fx.Module,
		fx.NopLogger,
		fx.Invoke(func(in deps) { d = in }),
	)
	if err := app.Err(); err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	return fn(ctx, d)
}
