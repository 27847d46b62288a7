package alert_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/internal/config"
	"passpay/internal/services"
)

var Module = fx.Provide(provideAlertService)

func provideAlertService(cfg config.Config, log *zap.Logger) services.AlertService {
	return services.NewAlertService(services.SMTPConfig{
		Host:       cfg.Alert.Host,
		Port:       cfg.Alert.Port,
		Username:   cfg.Alert.Username,
		Password:   cfg.Alert.Password,
		From:       cfg.Alert.From,
		FromName:   cfg.Alert.FromName,
		Recipients: cfg.Alert.Recipients,
		UseSSL:     cfg.Alert.UseSSL,
		RequireTLS: cfg.Alert.RequireTLS,
		AppName:    cfg.ServiceName,
	}, log)
}
