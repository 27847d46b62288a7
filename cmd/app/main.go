package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"passpay/cmd/fx/alert_fx"
	"passpay/cmd/fx/config_fx"
	"passpay/cmd/fx/controllers_fx"
	"passpay/cmd/fx/db_fx"
	"passpay/cmd/fx/gateway_fx"
	"passpay/cmd/fx/logger_fx"
	"passpay/cmd/fx/repositories_fx"
	"passpay/cmd/fx/scheduler_fx"
	"passpay/cmd/fx/services_fx"
	"passpay/internal/api"
	"passpay/internal/config"
)

func main() {
	app := fx.New(
		config_fx.Module,
		logger_fx.Module,
		db_fx.Module,
		gateway_fx.Module,
		repositories_fx.Module,
		alert_fx.Module,
		services_fx.Module,
		controllers_fx.Module,
		scheduler_fx.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(provideRouter),
		fx.Invoke(StartServer),
	)

	app.Run()
}

func provideRouter(cfg config.Config, p api.RouterParams) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewRouter(p)
}

func StartServer(lc fx.Lifecycle, cfg config.Config, engine *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("starting HTTP server", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("failed to start server", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping HTTP server")
			return srv.Shutdown(ctx)
		},
	})
}
