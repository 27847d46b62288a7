package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"passpay/internal/clock"
	"passpay/internal/gateways"
	"passpay/internal/gateways/airtel"
	"passpay/internal/gateways/mtn"
	"passpay/internal/infra"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/observability/metrics"
	"passpay/internal/repositories"
	"passpay/internal/testutil"
)

const (
	mtnPayer    = "+242061234567"
	airtelPayer = "+242055123456"
)

type fakeAdapter struct {
	mu          sync.Mutex
	operator    string
	nextPending string
	debitErr    error
	status      *gateways.StatusResult
	statusErr   error
	balance     *gateways.Balance
	debits      []gateways.DebitRequest
	queries     int
}

var _ gateways.Adapter = (*fakeAdapter)(nil)

func (f *fakeAdapter) AcquireAccessToken(context.Context) (gateways.Token, error) {
	return gateways.Token{Value: "token", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAdapter) InitiateDebit(_ context.Context, req gateways.DebitRequest) (*gateways.DebitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits = append(f.debits, req)
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	pending := f.nextPending
	if pending == "" {
		pending = req.Reference
	}
	return &gateways.DebitResult{
		PendingReference: pending,
		RawRequest:       json.RawMessage(`{"amount":"` + req.Amount.String() + `"}`),
		RawResponse:      json.RawMessage(`{"accepted":true}`),
	}, nil
}

func (f *fakeAdapter) QueryStatus(context.Context, string) (*gateways.StatusResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.status == nil {
		return &gateways.StatusResult{Status: gateways.StatusPending, RawCode: "PENDING"}, nil
	}
	res := *f.status
	return &res, nil
}

func (f *fakeAdapter) QueryBalance(context.Context) (*gateways.Balance, error) {
	if f.balance == nil {
		return nil, &gateways.Failure{Operator: f.operator, Operation: "query_balance", Reason: "unavailable", Transient: true}
	}
	return f.balance, nil
}

func (f *fakeAdapter) setStatus(res *gateways.StatusResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = res
	f.statusErr = err
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []Alert
}

func (r *recordingAlerts) ManualReconciliation(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

type harness struct {
	db         *gorm.DB
	clock      *clock.Manual
	mtn        *fakeAdapter
	airtel     *fakeAdapter
	registry   *gateways.Registry
	alerts     *recordingAlerts
	policyRepo repositories.PolicyRepository
	allocator  PolicyAllocator
	activation ActivationService
	reconciler ReconciliationService
	payments   PaymentService
	policies   PolicyService
	operators  OperatorService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.OpenDB(t)
	log := zap.NewNop()
	clk := clock.NewManual(time.Now())
	m := metrics.NewForRegistry(prometheus.NewRegistry())

	h := &harness{
		db:     db,
		clock:  clk,
		mtn:    &fakeAdapter{operator: string(dbm.OperatorMTN)},
		airtel: &fakeAdapter{operator: string(dbm.OperatorAirtel)},
		alerts: &recordingAlerts{},
	}
	h.registry = gateways.NewRegistry(
		gateways.Provider{
			Operator:     dbm.OperatorMTN,
			DisplayName:  "MTN Mobile Money",
			Prefixes:     []string{"06"},
			Instructions: "Approve the request on your phone",
			Adapter:      h.mtn,
			Callbacks:    mtn.CallbackParser{},
		},
		gateways.Provider{
			Operator:    dbm.OperatorAirtel,
			DisplayName: "Airtel Money",
			Prefixes:    []string{"05", "04"},
			Adapter:     h.airtel,
			Callbacks:   airtel.CallbackParser{},
			Fallback:    gateways.FallbackPolicy{Enabled: true, GracePeriod: 2 * time.Minute, MinimumWait: 2 * time.Minute},
		},
	)

	txns := repositories.NewTransactionRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	subs := repositories.NewSubscriptionRepository(db)
	h.policyRepo = repositories.NewPolicyRepository(db)
	ids, err := infra.NewIDGenerator(1)
	require.NoError(t, err)

	h.allocator = NewPolicyAllocator(h.policyRepo, log)
	h.activation = NewActivationService(db, subs, paymentRepo, h.policyRepo, h.allocator, clk, m, log)
	h.reconciler = NewReconciliationService(db, txns, paymentRepo, h.activation, h.alerts, h.registry, clk,
		ReconcileConfig{RecencyWindow: 10 * time.Minute, Workers: 4}, m, log)
	h.payments = NewPaymentService(db, paymentRepo, txns, subs, h.policyRepo, h.registry, h.reconciler, ids, log)
	h.policies = NewPolicyService(db, h.policyRepo, clk, log)
	h.operators = NewOperatorService(h.registry, m, log)
	return h
}

func (h *harness) payment(t *testing.T, number string) dbm.PaymentRecord {
	t.Helper()
	var p dbm.PaymentRecord
	require.NoError(t, h.db.Where("transaction_number = ?", number).First(&p).Error)
	return p
}

func (h *harness) transaction(t *testing.T, reference string) dbm.GatewayTransaction {
	t.Helper()
	var txn dbm.GatewayTransaction
	require.NoError(t, h.db.Where("reference = ?", reference).First(&txn).Error)
	return txn
}

func (h *harness) subscription(t *testing.T, fx testutil.Fixture) dbm.Subscription {
	t.Helper()
	var sub dbm.Subscription
	require.NoError(t, h.db.First(&sub, "id = ?", fx.Subscription.ID).Error)
	return sub
}

func (h *harness) policyCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.db.Model(&dbm.PolicyNumber{}).Count(&n).Error)
	return n
}
