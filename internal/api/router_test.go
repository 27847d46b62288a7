package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"passpay/internal/api/controllers"
	"passpay/internal/gateways"
	"passpay/internal/ledger"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/response_models"
	"passpay/internal/observability/metrics"
	"passpay/internal/services"
	"passpay/pkg/utils"
)

type stubPayments struct {
	services.PaymentService
	lastInput services.InitiatePaymentInput
	initErr   error
}

func (s *stubPayments) Initiate(_ context.Context, in services.InitiatePaymentInput) (*response_models.InitiatePaymentResponse, error) {
	s.lastInput = in
	if s.initErr != nil {
		return nil, s.initErr
	}
	return &response_models.InitiatePaymentResponse{TransactionNumber: "PASS-1", Status: "in_progress"}, nil
}

func (s *stubPayments) GetStatus(_ context.Context, number string) (*response_models.PaymentStatusResponse, error) {
	if number != "PASS-1" {
		return nil, utils.ErrPaymentNotFound
	}
	return &response_models.PaymentStatusResponse{TransactionNumber: number, Status: "succeeded"}, nil
}

type stubPolicies struct {
	services.PolicyService
	updated dbm.PolicyStatus
}

func (s *stubPolicies) UpdateStatus(_ context.Context, code string, status dbm.PolicyStatus, _ string) (*response_models.PolicyResponse, error) {
	s.updated = status
	return &response_models.PolicyResponse{Code: code, Status: string(status)}, nil
}

type stubReconciler struct {
	services.ReconciliationService
	callbacks []dbm.Operator
	outcome   *services.Outcome
}

func (s *stubReconciler) ApplyCallback(_ context.Context, operator dbm.Operator, _ []byte) (*services.Outcome, error) {
	s.callbacks = append(s.callbacks, operator)
	return s.outcome, nil
}

func (s *stubReconciler) Sweep(context.Context) (*services.SweepReport, error) {
	return &services.SweepReport{Scanned: 3, Settled: 2, Duration: 15 * time.Millisecond}, nil
}

type env struct {
	router     *gin.Engine
	payments   *stubPayments
	policies   *stubPolicies
	reconciler *stubReconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.ConfigureJWT("router-test-secret")

	hash, err := utils.HashSecret("airtel-shared")
	require.NoError(t, err)
	registry := gateways.NewRegistry(
		gateways.Provider{Operator: dbm.OperatorMTN, DisplayName: "MTN Mobile Money", Prefixes: []string{"06"}},
		gateways.Provider{Operator: dbm.OperatorAirtel, DisplayName: "Airtel Money", Prefixes: []string{"05"}, CallbackSecretHash: hash},
	)

	e := &env{
		payments: &stubPayments{},
		policies: &stubPolicies{},
		reconciler: &stubReconciler{outcome: &services.Outcome{
			Transaction: &dbm.GatewayTransaction{Status: dbm.TxnStatusSuccessful},
			Decision:    ledger.Decision{To: dbm.TxnStatusSuccessful},
		}},
	}
	log := zap.NewNop()
	e.router = NewRouter(RouterParams{
		Log:            log,
		Payments:       controllers.NewPaymentController(e.payments, log),
		Webhooks:       controllers.NewWebhookController(e.reconciler, registry, log),
		Policies:       controllers.NewPolicyController(e.policies, e.payments, log),
		Operators:      controllers.NewOperatorController(services.NewOperatorService(registry, metrics.NewForRegistry(prometheus.NewRegistry()), log), log),
		Reconciliation: controllers.NewReconciliationController(e.reconciler, nil, log),
	})
	return e
}

func (e *env) do(method, path, body string, headers map[string]string) (*httptest.ResponseRecorder, utils.APIResponse) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var resp utils.APIResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w, resp
}

func adminHeader(t *testing.T) map[string]string {
	t.Helper()
	token, err := utils.CreateToken("ops", "admin", time.Minute)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestInitiatePaymentRoute(t *testing.T) {
	e := newEnv(t)

	w, resp := e.do(http.MethodPost, "/v1/payments",
		`{"subscription_id":"7d5a3a8e-2f4b-4b35-9d55-2f0f3f9d1c11","amount":"5000","payer_number":"+242061234567","operator":"auto"}`, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "success", resp.Status)
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, "5000", e.payments.lastInput.Amount)
	assert.Equal(t, "auto", e.payments.lastInput.Operator)

	w, _ = e.do(http.MethodPost, "/v1/payments", `{"amount":"5000","payer_number":"+242061234567"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	e.payments.initErr = utils.ErrPaymentInProgress
	w, resp = e.do(http.MethodPost, "/v1/payments", `{"policy_code":"CG-2025-HEA-001","amount":"5000","payer_number":"+242061234567"}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "error", resp.Status)
}

func TestPaymentStatusRoute(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodGet, "/v1/payments/PASS-1", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodGet, "/v1/payments/PASS-404", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebhookRoutes(t *testing.T) {
	e := newEnv(t)

	// MTN has no shared secret configured.
	w, resp := e.do(http.MethodPost, "/v1/webhooks/mtn", `{"externalId":"GTX-1","status":"SUCCESSFUL"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "applied", data["result"])
	assert.Equal(t, "successful", data["status"])

	w, _ = e.do(http.MethodPost, "/v1/webhooks/airtel", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w, _ = e.do(http.MethodPost, "/v1/webhooks/airtel", `{}`, map[string]string{"X-Callback-Secret": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	e.reconciler.outcome = &services.Outcome{
		Transaction: &dbm.GatewayTransaction{Status: dbm.TxnStatusSuccessful},
		Decision:    ledger.Decision{Duplicate: true},
	}
	w, resp = e.do(http.MethodPost, "/v1/webhooks/airtel", `{}`, map[string]string{"X-Callback-Secret": "airtel-shared"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "duplicate", resp.Data.(map[string]any)["result"])

	e.reconciler.outcome = &services.Outcome{Ignored: true}
	_, resp = e.do(http.MethodPost, "/v1/webhooks/mtn", `{}`, nil)
	assert.Equal(t, "ignored", resp.Data.(map[string]any)["result"])

	assert.Equal(t, []dbm.Operator{dbm.OperatorMTN, dbm.OperatorAirtel, dbm.OperatorMTN}, e.reconciler.callbacks)
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodPost, "/v1/reconciliation/sweep", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := e.do(http.MethodPost, "/v1/reconciliation/sweep", "", adminHeader(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, resp.Data.(map[string]any)["scanned"])

	w, _ = e.do(http.MethodPatch, "/v1/policies/CG-2025-HEA-001/status", `{"status":"suspended"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = e.do(http.MethodPatch, "/v1/policies/CG-2025-HEA-001/status", `{"status":"expired"}`, adminHeader(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodPatch, "/v1/policies/CG-2025-HEA-001/status", `{"status":"suspended"}`, adminHeader(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dbm.PolicyStatusSuspended, e.policies.updated)
}

func TestOperatorRoutes(t *testing.T) {
	e := newEnv(t)

	w, resp := e.do(http.MethodGet, "/v1/operators", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 2)

	w, resp = e.do(http.MethodPost, "/v1/operators/detect", `{"phone_number":"055123456"}`, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "airtel_money", resp.Data.(map[string]any)["operator"])

	w, _ = e.do(http.MethodPost, "/v1/operators/detect", `{"phone_number":"071234567"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
