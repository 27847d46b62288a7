package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passpay/internal/gateways"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/testutil"
	"passpay/pkg/utils"
)

func initiate(t *testing.T, h *harness, fx testutil.Fixture, payer string) (string, string) {
	t.Helper()
	res, err := h.payments.Initiate(context.Background(), InitiatePaymentInput{
		SubscriptionID: fx.Subscription.ID.String(),
		Amount:         fx.Subscription.Amount.String(),
		PayerNumber:    payer,
		Operator:       gateways.ChoiceAuto,
	})
	require.NoError(t, err)
	return res.TransactionNumber, res.Reference
}

func expectedCode(h *harness, tag string, seq int) string {
	return FormatPolicyCode(PolicyBucket(utils.LocalTime(h.clock.Now()).Year(), tag), seq)
}

func TestPollSuccessActivatesAndIssuesPolicy(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "health-basic", 5000)
	h.mtn.nextPending = "mtn-ref-1"

	number, reference := initiate(t, h, fx, mtnPayer)
	txn := h.transaction(t, reference)
	assert.Equal(t, dbm.TxnStatusPending, txn.Status)
	require.NotNil(t, txn.OperatorReference)
	assert.Equal(t, "mtn-ref-1", *txn.OperatorReference)

	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusSuccessful, RawCode: "SUCCESSFUL", ConfirmationCode: "FT-991"}, nil)
	report, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Settled)
	assert.Zero(t, report.Errors)

	payment := h.payment(t, number)
	assert.Equal(t, dbm.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, "FT-991", payment.ConfirmationCode)
	assert.NotNil(t, payment.ConfirmedAt)
	assert.False(t, payment.NeedsManualReconciliation)

	sub := h.subscription(t, fx)
	assert.Equal(t, dbm.SubStatusActivated, sub.Status)
	require.NotNil(t, sub.ActivatedAt)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, time.Unix(*sub.ActivatedAt, 0).AddDate(0, 0, 365).Unix(), *sub.ExpiresAt)

	policy, err := h.policies.GetBySubscription(context.Background(), fx.Subscription.ID.String())
	require.NoError(t, err)
	assert.Equal(t, expectedCode(h, "HEA", 1), policy.Code)
	assert.Equal(t, string(dbm.PolicyStatusIssued), policy.Status)

	var client dbm.Client
	require.NoError(t, h.db.First(&client, "id = ?", fx.Client.ID).Error)
	assert.Equal(t, 1, client.ActiveSubscriptionCount)
	assert.Equal(t, "5000", client.TotalSubscribedValue.String())

	status, err := h.payments.GetStatus(context.Background(), number)
	require.NoError(t, err)
	assert.Equal(t, policy.Code, status.PolicyCode)
	assert.Equal(t, "gateway_poll", status.ConfirmationSource)
	assert.False(t, status.FallbackConfirmed)
}

func TestPollFailureRecordsReasonWithoutPolicy(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "LIFE", 2500)

	number, reference := initiate(t, h, fx, mtnPayer)
	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusFailed, RawCode: "FAILED", Reason: "insufficient funds"}, nil)

	_, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)

	payment := h.payment(t, number)
	assert.Equal(t, dbm.PaymentStatusFailed, payment.Status)
	assert.Equal(t, "insufficient funds", payment.FailureReason)
	assert.Equal(t, dbm.TxnStatusFailed, h.transaction(t, reference).Status)
	assert.Equal(t, dbm.SubStatusPending, h.subscription(t, fx).Status)
	assert.Zero(t, h.policyCount(t))
}

func TestUnmappedStatusStaysPendingWithNote(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "LIFE", 2500)
	_, reference := initiate(t, h, fx, mtnPayer)

	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusPending, RawCode: "AWAITING_PIN", Unmapped: true}, nil)
	_, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)

	txn := h.transaction(t, reference)
	assert.Equal(t, dbm.TxnStatusPending, txn.Status)
	assert.Contains(t, txn.StatusReason, "AWAITING_PIN")
	assert.Equal(t, 1, txn.PollCount)
}

func TestAirtelFallbackThenLateCallbackActivatesOnce(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	number, reference := initiate(t, h, fx, airtelPayer)

	outage := &gateways.Failure{Operator: "airtel_money", Operation: "query_status", Reason: "gateway timeout", StatusCode: 504, Transient: true}
	h.airtel.setStatus(nil, outage)

	// Too young: the status failure is reported, nothing is promoted.
	report, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, dbm.TxnStatusPending, h.transaction(t, reference).Status)

	h.clock.Advance(3 * time.Minute)
	report, err = h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fallbacks)

	txn := h.transaction(t, reference)
	assert.Equal(t, dbm.TxnStatusSuccessful, txn.Status)
	assert.Equal(t, dbm.SourceTimeoutFallback, txn.ConfirmationSource)
	assert.NotNil(t, txn.FallbackConfirmedAt)
	// No operator confirmation exists yet; the debit is traceable by its reference.
	assert.Equal(t, *txn.OperatorReference, txn.ConfirmationCode)
	payment := h.payment(t, number)
	assert.Equal(t, dbm.PaymentStatusSucceeded, payment.Status)
	assert.Equal(t, *txn.OperatorReference, payment.ConfirmationCode)
	assert.EqualValues(t, 1, h.policyCount(t))

	body := fmt.Sprintf(`{"transaction":{"id":%q,"status_code":"TS","airtel_money_id":"AM-1"}}`, reference)
	out, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorAirtel, []byte(body))
	require.NoError(t, err)
	assert.True(t, out.Decision.Duplicate)
	assert.False(t, out.Flagged)
	assert.EqualValues(t, 1, h.policyCount(t))
	txn = h.transaction(t, reference)
	assert.Nil(t, txn.CallbackAt)
	assert.NotNil(t, txn.LateCallbackAt)
	assert.JSONEq(t, body, string(txn.LateCallbackPayload))
}

func TestFailureAfterFallbackFlagsPayment(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	number, reference := initiate(t, h, fx, airtelPayer)

	h.airtel.setStatus(nil, &gateways.Failure{Operator: "airtel_money", Operation: "query_status", Reason: "timeout", Transient: true})
	h.clock.Advance(5 * time.Minute)
	_, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)

	body := fmt.Sprintf(`{"transaction":{"id":%q,"status_code":"TF","message":"insufficient balance"}}`, reference)
	out, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorAirtel, []byte(body))
	require.NoError(t, err)
	assert.True(t, out.Flagged)

	payment := h.payment(t, number)
	assert.Equal(t, dbm.PaymentStatusSucceeded, payment.Status)
	assert.True(t, payment.NeedsManualReconciliation)
	assert.Contains(t, payment.ReconciliationNote, "insufficient balance")
	assert.Eventually(t, func() bool { return h.alerts.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSuccessAfterFailureFlagsPayment(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	h.mtn.nextPending = "mtn-ref-late"
	number, reference := initiate(t, h, fx, mtnPayer)

	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusFailed, RawCode: "FAILED", Reason: "timed out at operator"}, nil)
	_, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, dbm.PaymentStatusFailed, h.payment(t, number).Status)

	body := fmt.Sprintf(`{"referenceId":"mtn-ref-late","externalId":%q,"status":"SUCCESSFUL","financialTransactionId":"FT-404"}`, reference)
	out, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(body))
	require.NoError(t, err)
	assert.True(t, out.Decision.Duplicate)
	assert.True(t, out.Flagged)

	payment := h.payment(t, number)
	assert.Equal(t, dbm.PaymentStatusFailed, payment.Status)
	assert.True(t, payment.NeedsManualReconciliation)
	assert.Contains(t, payment.ReconciliationNote, "closed as failed")
	assert.Contains(t, payment.ReconciliationNote, "FT-404")
	assert.Equal(t, dbm.TxnStatusFailed, h.transaction(t, reference).Status)
	assert.Zero(t, h.policyCount(t))
	assert.Eventually(t, func() bool { return h.alerts.count() == 1 }, time.Second, 10*time.Millisecond)

	flagged, err := h.activation.ListFlagged(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, flagged, 1)
	assert.Equal(t, number, flagged[0].TransactionNumber)
}

func TestLateCallbackKeepsSettlingPayloads(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	h.mtn.nextPending = "mtn-ref-audit"
	_, reference := initiate(t, h, fx, mtnPayer)

	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusPending, RawCode: "PENDING", RawResponse: []byte(`{"status":"PENDING"}`)}, nil)
	_, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)

	txn := h.transaction(t, reference)
	assert.JSONEq(t, `{"accepted":true}`, string(txn.ResponsePayload))
	assert.JSONEq(t, `{"status":"PENDING"}`, string(txn.StatusPayload))

	settling := fmt.Sprintf(`{"referenceId":"mtn-ref-audit","externalId":%q,"status":"SUCCESSFUL","financialTransactionId":"FT-5"}`, reference)
	_, err = h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(settling))
	require.NoError(t, err)

	late := fmt.Sprintf(`{"referenceId":"mtn-ref-audit","externalId":%q,"status":"FAILED"}`, reference)
	out, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(late))
	require.NoError(t, err)
	assert.True(t, out.Decision.Duplicate)
	assert.False(t, out.Flagged)

	txn = h.transaction(t, reference)
	assert.Equal(t, dbm.TxnStatusSuccessful, txn.Status)
	assert.JSONEq(t, settling, string(txn.CallbackPayload))
	assert.JSONEq(t, late, string(txn.LateCallbackPayload))
	assert.NotNil(t, txn.LateCallbackAt)
	assert.JSONEq(t, `{"accepted":true}`, string(txn.ResponsePayload))
	assert.Equal(t, 1, txn.PollCount)
}

func TestMTNNeverFallsBack(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	_, reference := initiate(t, h, fx, mtnPayer)

	h.mtn.setStatus(nil, &gateways.Failure{Operator: "mtn_money", Operation: "query_status", Reason: "503", Transient: true})
	h.clock.Advance(8 * time.Minute)
	report, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, dbm.TxnStatusPending, h.transaction(t, reference).Status)
}

func TestDuplicateCallbackIsNoop(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	h.mtn.nextPending = "mtn-ref-dup"
	number, reference := initiate(t, h, fx, mtnPayer)

	body := fmt.Sprintf(`{"referenceId":"mtn-ref-dup","externalId":%q,"status":"SUCCESSFUL","financialTransactionId":"FT-1"}`, reference)
	first, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(body))
	require.NoError(t, err)
	assert.True(t, first.Decision.Settled())
	require.NotNil(t, first.Activation)
	require.NotNil(t, first.Activation.Policy)

	second, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(body))
	require.NoError(t, err)
	assert.True(t, second.Decision.Duplicate)
	assert.Nil(t, second.Activation)

	assert.EqualValues(t, 1, h.policyCount(t))
	assert.Equal(t, dbm.SourceCallback, h.transaction(t, reference).ConfirmationSource)
	assert.Equal(t, "FT-1", h.payment(t, number).ConfirmationCode)
}

func TestCallbackForUnknownReferenceIsIgnored(t *testing.T) {
	h := newHarness(t)
	out, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN,
		[]byte(`{"referenceId":"nope","externalId":"GTX-0","status":"SUCCESSFUL"}`))
	require.NoError(t, err)
	assert.True(t, out.Ignored)

	_, err = h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, []byte(`{"status":"SUCCESSFUL"}`))
	assert.ErrorIs(t, err, gateways.ErrMalformedCallback)
}

// On the default sqlite database the racers are serialized; run with
// testutil.PostgresEnv set to contend on the real row locks.
func TestConcurrentPollAndCallbackIssueOnePolicy(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	h.mtn.nextPending = "mtn-ref-race"
	number, reference := initiate(t, h, fx, mtnPayer)
	txn := h.transaction(t, reference)

	h.mtn.setStatus(&gateways.StatusResult{Status: gateways.StatusSuccessful, RawCode: "SUCCESSFUL"}, nil)
	body := []byte(fmt.Sprintf(`{"referenceId":"mtn-ref-race","externalId":%q,"status":"SUCCESSFUL"}`, reference))

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := h.reconciler.Poll(context.Background(), txn.ID); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := h.reconciler.ApplyCallback(context.Background(), dbm.OperatorMTN, body); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected error: %v", err)
	}

	assert.EqualValues(t, 1, h.policyCount(t))
	assert.Equal(t, dbm.PaymentStatusSucceeded, h.payment(t, number).Status)
}

func TestExpireAndCancel(t *testing.T) {
	h := newHarness(t)
	fxA := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	fxB := testutil.SeedSubscription(t, h.db, "HEALTH", 3000)
	stale, staleRef := initiate(t, h, fxA, mtnPayer)
	cancelled, cancelledRef := initiate(t, h, fxB, airtelPayer)

	out, err := h.reconciler.Cancel(context.Background(), cancelled, "payer abandoned")
	require.NoError(t, err)
	assert.True(t, out.Decision.Changed)
	assert.Equal(t, dbm.TxnStatusCancelled, h.transaction(t, cancelledRef).Status)
	assert.Equal(t, dbm.PaymentStatusFailed, h.payment(t, cancelled).Status)

	_, err = h.reconciler.Cancel(context.Background(), cancelled, "")
	assert.ErrorIs(t, err, utils.ErrInvalidRequest)

	h.clock.Advance(time.Hour)
	n, err := h.reconciler.Expire(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, dbm.TxnStatusTimeout, h.transaction(t, staleRef).Status)
	assert.Equal(t, dbm.PaymentStatusExpired, h.payment(t, stale).Status)
}

func TestSweepSkipsOldAndUnacknowledged(t *testing.T) {
	h := newHarness(t)
	fx := testutil.SeedSubscription(t, h.db, "HEALTH", 5000)
	_, reference := initiate(t, h, fx, mtnPayer)

	orphan := &dbm.GatewayTransaction{
		Reference:   "GTX-orphan",
		Operator:    dbm.OperatorMTN,
		Amount:      fx.Subscription.Amount,
		PayerNumber: mtnPayer,
		Status:      dbm.TxnStatusInitiated,
	}
	require.NoError(t, h.db.Create(orphan).Error)

	report, err := h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Polled)

	h.clock.Advance(11 * time.Minute)
	report, err = h.reconciler.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, dbm.TxnStatusPending, h.transaction(t, reference).Status)
}
