package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	Environment string
	ServiceName string

	DatabaseURL string
	AutoMigrate bool

	JWTSecret string
	NodeID    int64

	Reconciliation ReconciliationConfig
	MTN            MTNConfig
	Airtel         AirtelConfig
	Alert          AlertConfig
}

// AlertConfig is the SMTP relay for manual-reconciliation alerts. Alerts
// are only logged when Host or Recipients is empty.
type AlertConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	Recipients []string
	UseSSL     bool
	RequireTLS bool
}

type ReconciliationConfig struct {
	Enabled       bool
	Interval      time.Duration
	RecencyWindow time.Duration
	Workers       int
	SweepTimeout  time.Duration
	ExpireAfter   time.Duration
}

// FallbackConfig drives the timeout fallback of one operator.
type FallbackConfig struct {
	Enabled     bool
	GracePeriod time.Duration
	MinimumWait time.Duration
}

type HTTPConfig struct {
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
}

type MTNConfig struct {
	BaseURL            string
	UserID             string
	APIKey             string
	SubscriptionKey    string
	TargetEnvironment  string
	CallbackURL        string
	Currency           string
	CallbackSecretHash string
	HTTP               HTTPConfig
	Fallback           FallbackConfig
}

type AirtelConfig struct {
	BaseURL            string
	ClientID           string
	ClientSecret       string
	Country            string
	Currency           string
	CallbackSecretHash string
	HTTP               HTTPConfig
	Fallback           FallbackConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVICE_NAME", "passpay")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("NODE_ID", 1)

	v.SetDefault("RECONCILE_ENABLED", true)
	v.SetDefault("RECONCILE_INTERVAL", "30s")
	v.SetDefault("RECONCILE_RECENCY_WINDOW", "10m")
	v.SetDefault("RECONCILE_WORKERS", 8)
	v.SetDefault("RECONCILE_SWEEP_TIMEOUT", "2m")
	v.SetDefault("RECONCILE_EXPIRE_AFTER", "24h")

	v.SetDefault("ALERT_SMTP_PORT", 587)
	v.SetDefault("ALERT_SMTP_FROM_NAME", "PassPay")
	v.SetDefault("ALERT_SMTP_REQUIRE_TLS", true)

	v.SetDefault("MTN_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	v.SetDefault("MTN_TARGET_ENVIRONMENT", "sandbox")
	v.SetDefault("MTN_CURRENCY", "XAF")
	v.SetDefault("MTN_HTTP_TIMEOUT", "30s")
	v.SetDefault("MTN_HTTP_MAX_RETRIES", 2)
	v.SetDefault("MTN_HTTP_RPS", 10)
	v.SetDefault("MTN_FALLBACK_ENABLED", false)
	v.SetDefault("MTN_FALLBACK_GRACE", "2m")
	v.SetDefault("MTN_FALLBACK_MIN_WAIT", "2m")

	v.SetDefault("AIRTEL_BASE_URL", "https://openapi.airtel.africa")
	v.SetDefault("AIRTEL_COUNTRY", "CG")
	v.SetDefault("AIRTEL_CURRENCY", "XAF")
	v.SetDefault("AIRTEL_HTTP_TIMEOUT", "30s")
	v.SetDefault("AIRTEL_HTTP_MAX_RETRIES", 2)
	v.SetDefault("AIRTEL_HTTP_RPS", 10)
	v.SetDefault("AIRTEL_FALLBACK_ENABLED", true)
	v.SetDefault("AIRTEL_FALLBACK_GRACE", "2m")
	v.SetDefault("AIRTEL_FALLBACK_MIN_WAIT", "2m")
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Port:        v.GetString("PORT"),
		Environment: v.GetString("APP_ENV"),
		ServiceName: v.GetString("SERVICE_NAME"),
		DatabaseURL: v.GetString("POSTGRES_URL"),
		AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		NodeID:      v.GetInt64("NODE_ID"),
		Reconciliation: ReconciliationConfig{
			Enabled:       v.GetBool("RECONCILE_ENABLED"),
			Interval:      v.GetDuration("RECONCILE_INTERVAL"),
			RecencyWindow: v.GetDuration("RECONCILE_RECENCY_WINDOW"),
			Workers:       v.GetInt("RECONCILE_WORKERS"),
			SweepTimeout:  v.GetDuration("RECONCILE_SWEEP_TIMEOUT"),
			ExpireAfter:   v.GetDuration("RECONCILE_EXPIRE_AFTER"),
		},
		MTN: MTNConfig{
			BaseURL:            strings.TrimRight(v.GetString("MTN_BASE_URL"), "/"),
			UserID:             v.GetString("MTN_USER_ID"),
			APIKey:             v.GetString("MTN_API_KEY"),
			SubscriptionKey:    v.GetString("MTN_SUBSCRIPTION_KEY"),
			TargetEnvironment:  v.GetString("MTN_TARGET_ENVIRONMENT"),
			CallbackURL:        v.GetString("MTN_CALLBACK_URL"),
			Currency:           v.GetString("MTN_CURRENCY"),
			CallbackSecretHash: v.GetString("MTN_CALLBACK_SECRET_HASH"),
			HTTP:               httpConfig(v, "MTN"),
			Fallback:           fallbackConfig(v, "MTN"),
		},
		Airtel: AirtelConfig{
			BaseURL:            strings.TrimRight(v.GetString("AIRTEL_BASE_URL"), "/"),
			ClientID:           v.GetString("AIRTEL_CLIENT_ID"),
			ClientSecret:       v.GetString("AIRTEL_CLIENT_SECRET"),
			Country:            v.GetString("AIRTEL_COUNTRY"),
			Currency:           v.GetString("AIRTEL_CURRENCY"),
			CallbackSecretHash: v.GetString("AIRTEL_CALLBACK_SECRET_HASH"),
			HTTP:               httpConfig(v, "AIRTEL"),
			Fallback:           fallbackConfig(v, "AIRTEL"),
		},
		Alert: AlertConfig{
			Host:       v.GetString("ALERT_SMTP_HOST"),
			Port:       v.GetInt("ALERT_SMTP_PORT"),
			Username:   v.GetString("ALERT_SMTP_USERNAME"),
			Password:   v.GetString("ALERT_SMTP_PASSWORD"),
			From:       v.GetString("ALERT_SMTP_FROM"),
			FromName:   v.GetString("ALERT_SMTP_FROM_NAME"),
			Recipients: splitList(v.GetString("ALERT_RECIPIENTS")),
			UseSSL:     v.GetBool("ALERT_SMTP_USE_SSL"),
			RequireTLS: v.GetBool("ALERT_SMTP_REQUIRE_TLS"),
		},
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func httpConfig(v *viper.Viper, prefix string) HTTPConfig {
	return HTTPConfig{
		Timeout:           v.GetDuration(prefix + "_HTTP_TIMEOUT"),
		MaxRetries:        v.GetInt(prefix + "_HTTP_MAX_RETRIES"),
		RequestsPerSecond: v.GetFloat64(prefix + "_HTTP_RPS"),
	}
}

func fallbackConfig(v *viper.Viper, prefix string) FallbackConfig {
	return FallbackConfig{
		Enabled:     v.GetBool(prefix + "_FALLBACK_ENABLED"),
		GracePeriod: v.GetDuration(prefix + "_FALLBACK_GRACE"),
		MinimumWait: v.GetDuration(prefix + "_FALLBACK_MIN_WAIT"),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
