package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.Reconciliation.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Reconciliation.RecencyWindow)
	assert.False(t, cfg.MTN.Fallback.Enabled)
	assert.True(t, cfg.Airtel.Fallback.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Airtel.Fallback.GracePeriod)
	assert.Equal(t, "CG", cfg.Airtel.Country)
	assert.Equal(t, "XAF", cfg.MTN.Currency)
}

func TestOverridesTrimBaseURL(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("MTN_BASE_URL", "https://proxy.momodeveloper.mtn.com/")
	v.Set("RECONCILE_WORKERS", 3)
	v.Set("APP_ENV", "Production")

	cfg := fromViper(v)

	assert.Equal(t, "https://proxy.momodeveloper.mtn.com", cfg.MTN.BaseURL)
	assert.Equal(t, 3, cfg.Reconciliation.Workers)
	assert.True(t, cfg.IsProduction())
}

func TestAlertRecipientsList(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ALERT_RECIPIENTS", " ops@passpay.cg, ,finance@passpay.cg ")

	cfg := fromViper(v)

	assert.Equal(t, []string{"ops@passpay.cg", "finance@passpay.cg"}, cfg.Alert.Recipients)
	assert.Equal(t, 587, cfg.Alert.Port)
	assert.True(t, cfg.Alert.RequireTLS)
	assert.Empty(t, cfg.Alert.Host)
}
