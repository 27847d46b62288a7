package gateway_fx

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"passpay/internal/config"
	"passpay/internal/gateways"
	"passpay/internal/gateways/airtel"
	"passpay/internal/gateways/mtn"
	dbm "passpay/internal/models/db_models"
)

var Module = fx.Provide(provideRegistry)

// National-number prefixes served by each operator in Congo-Brazzaville.
var (
	mtnPrefixes    = []string{"061", "062", "063", "064", "065", "066", "067", "068", "069"}
	airtelPrefixes = []string{"055", "056", "057", "058", "059", "04"}
)

func provideRegistry(cfg config.Config, log *zap.Logger) *gateways.Registry {
	mtnAdapter := mtn.New(mtn.Config{
		BaseURL:           cfg.MTN.BaseURL,
		UserID:            cfg.MTN.UserID,
		APIKey:            cfg.MTN.APIKey,
		SubscriptionKey:   cfg.MTN.SubscriptionKey,
		TargetEnvironment: cfg.MTN.TargetEnvironment,
		CallbackURL:       cfg.MTN.CallbackURL,
		Currency:          cfg.MTN.Currency,
		HTTP:              httpOptions(cfg.MTN.HTTP),
	}, log)

	airtelAdapter := airtel.New(airtel.Config{
		BaseURL:      cfg.Airtel.BaseURL,
		ClientID:     cfg.Airtel.ClientID,
		ClientSecret: cfg.Airtel.ClientSecret,
		Country:      cfg.Airtel.Country,
		Currency:     cfg.Airtel.Currency,
		HTTP:         httpOptions(cfg.Airtel.HTTP),
	}, log)

	return gateways.NewRegistry(
		gateways.Provider{
			Operator:           dbm.OperatorMTN,
			DisplayName:        "MTN Mobile Money",
			Prefixes:           mtnPrefixes,
			Instructions:       "Approve the payment on your phone, or dial *105# and confirm with your PIN.",
			Adapter:            mtnAdapter,
			Callbacks:          mtn.CallbackParser{},
			Fallback:           fallback(cfg.MTN.Fallback),
			CallbackSecretHash: cfg.MTN.CallbackSecretHash,
		},
		gateways.Provider{
			Operator:           dbm.OperatorAirtel,
			DisplayName:        "Airtel Money",
			Prefixes:           airtelPrefixes,
			Instructions:       "Enter your Airtel Money PIN on the prompt to confirm the payment.",
			Adapter:            airtelAdapter,
			Callbacks:          airtel.CallbackParser{},
			Fallback:           fallback(cfg.Airtel.Fallback),
			CallbackSecretHash: cfg.Airtel.CallbackSecretHash,
		},
	)
}

func httpOptions(c config.HTTPConfig) gateways.HTTPOptions {
	return gateways.HTTPOptions{
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RequestsPerSecond: c.RequestsPerSecond,
	}
}

func fallback(c config.FallbackConfig) gateways.FallbackPolicy {
	return gateways.FallbackPolicy{
		Enabled:     c.Enabled,
		GracePeriod: c.GracePeriod,
		MinimumWait: c.MinimumWait,
	}
}
