package airtel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"passpay/internal/gateways"
)

type fakeAirtel struct {
	tokenCalls   int32
	lastPayment  paymentRequest
	lastHeaders  http.Header
	enquiry      string
	enquiryCode  int
	debitCode    int
	debitSuccess bool
	noMessage    bool
}

func (f *fakeAirtel) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.tokenCalls, 1)
		var req tokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "client_credentials", req.GrantType)
		// Airtel sends expires_in as a string in some environments
		_, _ = w.Write([]byte(`{"access_token":"airtel-token","expires_in":"180","token_type":"bearer"}`))
	})
	mux.HandleFunc("/merchant/v1/payments/", func(w http.ResponseWriter, r *http.Request) {
		f.lastHeaders = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastPayment))
		if f.debitCode != 0 {
			w.WriteHeader(f.debitCode)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data":   map[string]any{"transaction": map[string]any{"id": f.lastPayment.Transaction.ID, "status": "SUCCESS"}},
			"status": map[string]any{"code": "200", "message": "SUCCESS", "success": f.debitSuccess},
		})
	})
	mux.HandleFunc("/standard/v1/payments/", func(w http.ResponseWriter, r *http.Request) {
		if f.enquiryCode != 0 {
			w.WriteHeader(f.enquiryCode)
			return
		}
		message := "Insufficient funds"
		if f.noMessage {
			message = ""
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"transaction": map[string]any{
				"id":              "GTX-7",
				"status":          f.enquiry,
				"message":         message,
				"airtel_money_id": "MP210603.1234.A00001",
			}},
			"status": map[string]any{"code": "200", "success": true},
		})
	})
	mux.HandleFunc("/standard/v1/users/balance", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"balance":"98000","currency":"XAF","account_status":"ACTIVE"},"status":{"success":true}}`))
	})
	return mux
}

func newTestAdapter(t *testing.T, fake *fakeAirtel) *Adapter {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL:      srv.URL,
		ClientID:     "client",
		ClientSecret: "secret",
		HTTP:         gateways.HTTPOptions{Timeout: 2 * time.Second, MaxRetries: 1, Backoff: time.Millisecond},
	}, zap.NewNop())
}

func TestInitiateDebit(t *testing.T) {
	fake := &fakeAirtel{debitSuccess: true}
	a := newTestAdapter(t, fake)

	res, err := a.InitiateDebit(context.Background(), gateways.DebitRequest{
		Amount:      decimal.NewFromInt(5000),
		PayerNumber: "+242055852359",
		Reference:   "GTX-7",
		Description: "Subscription SUB-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "GTX-7", res.PendingReference)
	assert.Equal(t, "055852359", fake.lastPayment.Subscriber.MSISDN)
	assert.Equal(t, "CG", fake.lastPayment.Subscriber.Country)
	assert.Equal(t, "5000", fake.lastPayment.Transaction.Amount)
	assert.Equal(t, "GTX-7", fake.lastPayment.Transaction.ID)
	assert.Equal(t, "CG", fake.lastHeaders.Get("X-Country"))
	assert.Equal(t, "XAF", fake.lastHeaders.Get("X-Currency"))
	assert.Equal(t, "Bearer airtel-token", fake.lastHeaders.Get("Authorization"))
}

func TestInitiateDebitUnsuccessfulEnvelope(t *testing.T) {
	a := newTestAdapter(t, &fakeAirtel{debitSuccess: false})

	_, err := a.InitiateDebit(context.Background(), gateways.DebitRequest{
		Amount:      decimal.NewFromInt(5000),
		PayerNumber: "055852359",
		Reference:   "GTX-8",
	})
	f, ok := gateways.AsFailure(err)
	require.True(t, ok)
	assert.False(t, f.Transient)
	assert.Empty(t, f.PendingReference)
}

func TestInitiateDebitGatewayDownKeepsReference(t *testing.T) {
	a := newTestAdapter(t, &fakeAirtel{debitCode: http.StatusGatewayTimeout})

	_, err := a.InitiateDebit(context.Background(), gateways.DebitRequest{
		Amount:      decimal.NewFromInt(5000),
		PayerNumber: "055852359",
		Reference:   "GTX-9",
	})
	f, ok := gateways.AsFailure(err)
	require.True(t, ok)
	assert.True(t, f.Transient)
	assert.Equal(t, "GTX-9", f.PendingReference)
}

func TestQueryStatusMapping(t *testing.T) {
	tests := []struct {
		code   string
		want   gateways.NormalizedStatus
		reason string
	}{
		{"TS", gateways.StatusSuccessful, ""},
		{"TF", gateways.StatusFailed, "Insufficient funds"},
		{"TIP", gateways.StatusPending, ""},
		{"TA", gateways.StatusPending, ""},
		{"XYZ", gateways.StatusPending, ""},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			a := newTestAdapter(t, &fakeAirtel{enquiry: tt.code})
			res, err := a.QueryStatus(context.Background(), "GTX-7")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, "MP210603.1234.A00001", res.ConfirmationCode)
		})
	}
}

func TestQueryStatusFailureWithoutMessageHasReason(t *testing.T) {
	a := newTestAdapter(t, &fakeAirtel{enquiry: "TF", noMessage: true})

	res, err := a.QueryStatus(context.Background(), "GTX-7")
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusFailed, res.Status)
	assert.Equal(t, "payment failed (TF)", res.Reason)
}

func TestQueryStatusNotFoundIsPending(t *testing.T) {
	a := newTestAdapter(t, &fakeAirtel{enquiryCode: http.StatusNotFound})

	res, err := a.QueryStatus(context.Background(), "GTX-7")
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusPending, res.Status)
}

func TestQueryStatusGatewayDownIsTransientFailure(t *testing.T) {
	fake := &fakeAirtel{enquiryCode: http.StatusBadGateway}
	a := newTestAdapter(t, fake)

	_, err := a.QueryStatus(context.Background(), "GTX-7")
	assert.True(t, gateways.IsTransient(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&fake.tokenCalls))
}

func TestQueryBalance(t *testing.T) {
	a := newTestAdapter(t, &fakeAirtel{})

	bal, err := a.QueryBalance(context.Background())
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(decimal.NewFromInt(98000)))
}

func TestParseCallback(t *testing.T) {
	ev, err := CallbackParser{}.ParseCallback([]byte(`{"transaction":{"id":"GTX-7","message":"Paid","status_code":"TS","airtel_money_id":"MP1"}}`))
	require.NoError(t, err)
	assert.Equal(t, "GTX-7", ev.OperatorReference)
	assert.Equal(t, gateways.StatusSuccessful, ev.Status)
	assert.Equal(t, "MP1", ev.ConfirmationCode)

	ev, err = CallbackParser{}.ParseCallback([]byte(`{"transaction":{"id":"GTX-8","message":"Insufficient funds","status":"FAILED"}}`))
	require.NoError(t, err)
	assert.Equal(t, gateways.StatusFailed, ev.Status)
	assert.Equal(t, "Insufficient funds", ev.Reason)

	ev, err = CallbackParser{}.ParseCallback([]byte(`{"transaction":{"id":"GTX-9","status_code":"TF"}}`))
	require.NoError(t, err)
	assert.Equal(t, "payment failed (TF)", ev.Reason)

	_, err = CallbackParser{}.ParseCallback([]byte(`not json`))
	assert.ErrorIs(t, err, gateways.ErrMalformedCallback)
}
