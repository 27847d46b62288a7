package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passpay/internal/gateways"
	dbm "passpay/internal/models/db_models"
)

func TestDecideMapping(t *testing.T) {
	tests := []struct {
		name    string
		current dbm.TransactionStatus
		obs     Observation
		want    dbm.TransactionStatus
		changed bool
		note    bool
	}{
		{"pending to successful", dbm.TxnStatusPending, Observation{Status: gateways.StatusSuccessful}, dbm.TxnStatusSuccessful, true, false},
		{"pending to failed", dbm.TxnStatusPending, Observation{Status: gateways.StatusFailed}, dbm.TxnStatusFailed, true, false},
		{"initiated acknowledged", dbm.TxnStatusInitiated, Observation{Status: gateways.StatusPending}, dbm.TxnStatusPending, true, false},
		{"still pending", dbm.TxnStatusPending, Observation{Status: gateways.StatusPending}, dbm.TxnStatusPending, false, false},
		{"unknown stays pending", dbm.TxnStatusPending, Observation{Status: gateways.StatusUnknown}, dbm.TxnStatusPending, false, true},
		{"unmapped code noted", dbm.TxnStatusPending, Observation{Status: gateways.StatusPending, Unmapped: true, RawCode: "NEW"}, dbm.TxnStatusPending, false, true},
		{"initiated straight to successful", dbm.TxnStatusInitiated, Observation{Status: gateways.StatusSuccessful}, dbm.TxnStatusSuccessful, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.current, tt.obs)
			assert.Equal(t, tt.want, d.To)
			assert.Equal(t, tt.changed, d.Changed)
			assert.Equal(t, tt.note, d.Note != "")
			assert.False(t, d.Duplicate)
		})
	}
}

func TestDecideTerminalIsNoop(t *testing.T) {
	terminal := []dbm.TransactionStatus{dbm.TxnStatusSuccessful, dbm.TxnStatusFailed, dbm.TxnStatusTimeout, dbm.TxnStatusCancelled}
	observed := []gateways.NormalizedStatus{gateways.StatusSuccessful, gateways.StatusFailed, gateways.StatusPending, gateways.StatusUnknown}

	for _, cur := range terminal {
		for _, st := range observed {
			d := Decide(cur, Observation{Status: st})
			assert.True(t, d.Duplicate, "%s/%s", cur, st)
			assert.False(t, d.Changed)
			assert.Equal(t, cur, d.To)
		}
	}
}

func TestDecideNeverReturnsToInitiated(t *testing.T) {
	for _, st := range []gateways.NormalizedStatus{gateways.StatusSuccessful, gateways.StatusFailed, gateways.StatusPending, gateways.StatusUnknown, "garbage"} {
		d := Decide(dbm.TxnStatusPending, Observation{Status: st})
		assert.NotEqual(t, dbm.TxnStatusInitiated, d.To)
	}
}

func TestTerminate(t *testing.T) {
	d, err := Terminate(dbm.TxnStatusPending, dbm.TxnStatusTimeout)
	require.NoError(t, err)
	assert.True(t, d.Settled())

	d, err = Terminate(dbm.TxnStatusSuccessful, dbm.TxnStatusCancelled)
	require.NoError(t, err)
	assert.True(t, d.Duplicate)
	assert.Equal(t, dbm.TxnStatusSuccessful, d.To)

	_, err = Terminate(dbm.TxnStatusPending, dbm.TxnStatusPending)
	assert.Error(t, err)
}

func TestFallbackNeverPromotesYoungTransactions(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := gateways.FallbackPolicy{Enabled: true, GracePeriod: 30 * time.Second, MinimumWait: 2 * time.Minute}

	// pending for longer than the grace period, but younger than the minimum wait
	for age := time.Duration(0); age < policy.MinimumWait; age += 5 * time.Second {
		tx := &dbm.GatewayTransaction{Status: dbm.TxnStatusPending}
		tx.CreatedAt = now.Add(-age).Unix()
		assert.False(t, FallbackEligible(tx, policy, now), "age %s", age)
	}

	tx := &dbm.GatewayTransaction{Status: dbm.TxnStatusPending}
	tx.CreatedAt = now.Add(-policy.MinimumWait).Unix()
	assert.True(t, FallbackEligible(tx, policy, now))
}

func TestFallbackEligibility(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	policy := gateways.FallbackPolicy{Enabled: true, GracePeriod: 2 * time.Minute, MinimumWait: 2 * time.Minute}

	old := &dbm.GatewayTransaction{Status: dbm.TxnStatusPending}
	old.CreatedAt = now.Add(-3 * time.Minute).Unix()
	assert.True(t, FallbackEligible(old, policy, now))

	recentlyPending := &dbm.GatewayTransaction{Status: dbm.TxnStatusPending}
	recentlyPending.CreatedAt = now.Add(-5 * time.Minute).Unix()
	pendingAt := now.Add(-time.Minute).Unix()
	recentlyPending.PendingAt = &pendingAt
	assert.False(t, FallbackEligible(recentlyPending, policy, now))

	initiated := &dbm.GatewayTransaction{Status: dbm.TxnStatusInitiated}
	initiated.CreatedAt = old.CreatedAt
	assert.False(t, FallbackEligible(initiated, policy, now))

	policy.Enabled = false
	assert.False(t, FallbackEligible(old, policy, now))
}

func TestPaymentStatusFor(t *testing.T) {
	s, ok := PaymentStatusFor(dbm.TxnStatusSuccessful)
	assert.True(t, ok)
	assert.Equal(t, dbm.PaymentStatusSucceeded, s)

	s, _ = PaymentStatusFor(dbm.TxnStatusCancelled)
	assert.Equal(t, dbm.PaymentStatusFailed, s)

	s, _ = PaymentStatusFor(dbm.TxnStatusTimeout)
	assert.Equal(t, dbm.PaymentStatusExpired, s)

	_, ok = PaymentStatusFor(dbm.TxnStatusPending)
	assert.False(t, ok)
}
