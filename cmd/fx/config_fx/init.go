package config_fx

import (
	"go.uber.org/fx"

	"passpay/internal/config"
	"passpay/pkg/utils"
)

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Invoke(configureJWT),
)

func configureJWT(cfg config.Config) {
	utils.ConfigureJWT(cfg.JWTSecret)
}
