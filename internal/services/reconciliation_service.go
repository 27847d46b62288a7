package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"passpay/internal/clock"
	"passpay/internal/gateways"
	"passpay/internal/ledger"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/observability/metrics"
	"passpay/internal/repositories"
	"passpay/pkg/utils"
)

// ReconcileConfig bounds one sweep.
type ReconcileConfig struct {
	RecencyWindow time.Duration
	Workers       int
	BatchSize     int
}

func (c ReconcileConfig) withDefaults() ReconcileConfig {
	if c.RecencyWindow <= 0 {
		c.RecencyWindow = 10 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	return c
}

// Outcome describes what one observation did to a transaction.
type Outcome struct {
	Transaction *dbm.GatewayTransaction
	Payment     *dbm.PaymentRecord
	Decision    ledger.Decision
	Activation  *ActivationResult
	Ignored     bool // no matching transaction (webhooks only)
	Flagged     bool // payment was left for manual reconciliation
}

type SweepReport struct {
	Scanned   int
	Polled    int
	Settled   int
	Fallbacks int
	Skipped   int
	Errors    int
	Duration  time.Duration
}

// sweepTally is shared by the sweep workers.
type sweepTally struct {
	mu sync.Mutex
	r  SweepReport
}

func (t *sweepTally) add(fn func(r *SweepReport)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.r)
}

// ReconciliationService is the only writer of gateway transaction state.
// Polls, callbacks, the timeout fallback and admin actions all go through
// the same locked apply step.
type ReconciliationService interface {
	ApplyObservation(ctx context.Context, txnID uuid.UUID, obs ledger.Observation) (*Outcome, error)
	ApplyCallback(ctx context.Context, operator dbm.Operator, body []byte) (*Outcome, error)
	Acknowledge(ctx context.Context, txnID uuid.UUID, res *gateways.DebitResult) error
	HoldUnconfirmed(ctx context.Context, txnID uuid.UUID, f *gateways.Failure) error
	FailInitiation(ctx context.Context, txnID uuid.UUID, cause error) (*Outcome, error)
	Poll(ctx context.Context, txnID uuid.UUID) (*Outcome, error)
	Sweep(ctx context.Context) (*SweepReport, error)
	Expire(ctx context.Context, olderThan time.Duration) (int, error)
	Cancel(ctx context.Context, transactionNumber, reason string) (*Outcome, error)
}

type reconciliationService struct {
	db         *gorm.DB
	txns       repositories.TransactionRepository
	payments   repositories.PaymentRepository
	activation ActivationService
	alerts     AlertService
	registry   *gateways.Registry
	clock      clock.Clock
	cfg        ReconcileConfig
	metrics    *metrics.ReconcileMetrics
	log        *zap.Logger
}

func NewReconciliationService(
	db *gorm.DB,
	txns repositories.TransactionRepository,
	payments repositories.PaymentRepository,
	activation ActivationService,
	alerts AlertService,
	registry *gateways.Registry,
	clk clock.Clock,
	cfg ReconcileConfig,
	m *metrics.ReconcileMetrics,
	log *zap.Logger,
) ReconciliationService {
	return &reconciliationService{
		db:         db,
		txns:       txns,
		payments:   payments,
		activation: activation,
		alerts:     alerts,
		registry:   registry,
		clock:      clk,
		cfg:        cfg.withDefaults(),
		metrics:    m,
		log:        log.Named("payment.reconcile"),
	}
}

func (s *reconciliationService) ApplyObservation(ctx context.Context, txnID uuid.UUID, obs ledger.Observation) (*Outcome, error) {
	return s.apply(ctx, txnID, obs)
}

// apply locks the transaction row, decides the transition and persists the
// transaction, its payment and any activation in one database transaction.
func (s *reconciliationService) apply(ctx context.Context, txnID uuid.UUID, obs ledger.Observation) (*Outcome, error) {
	out := &Outcome{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txns := s.txns.WithTx(tx)
		txn, err := txns.LockByID(ctx, txnID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if txn == nil {
			return utils.ErrTransactionNotFound
		}
		out.Transaction = txn
		now := s.clock.Now()

		// The fallback was judged on an unlocked read; judge again.
		if obs.Source == dbm.SourceTimeoutFallback {
			provider, err := s.registry.Get(txn.Operator)
			if err != nil {
				return err
			}
			if !ledger.FallbackEligible(txn, provider.Fallback, now) {
				out.Decision = ledger.Decision{From: txn.Status, To: txn.Status}
				return nil
			}
		}

		recordEvidence(txn, obs, now)
		d := ledger.Decide(txn.Status, obs)
		out.Decision = d

		if d.Duplicate {
			s.logDuplicate(txn, obs)
			if err := txns.Save(ctx, txn); err != nil {
				return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
			}
			return s.flagContradiction(ctx, tx, txn, obs, out)
		}

		if d.Note != "" {
			s.log.Warn("operator status needs mapping coverage",
				zap.String("reference", txn.Reference),
				zap.String("operator", string(txn.Operator)),
				zap.String("note", d.Note))
		}
		if d.To == dbm.TxnStatusPending && txn.PendingAt == nil {
			txn.PendingAt = utils.UnixPtr(now)
		}
		if d.Changed {
			txn.Status = d.To
			s.metrics.IncTransition(string(txn.Operator), string(d.To), string(obs.Source))
		}
		if d.Settled() {
			txn.CompletedAt = utils.UnixPtr(now)
			txn.ConfirmationSource = obs.Source
			txn.ConfirmationCode = obs.ConfirmationCode
			if txn.ConfirmationCode == "" && obs.Source == dbm.SourceTimeoutFallback && txn.OperatorReference != nil {
				txn.ConfirmationCode = *txn.OperatorReference
			}
			txn.StatusReason = dbm.TruncateReason(obs.Reason)
			if obs.Source == dbm.SourceTimeoutFallback {
				txn.FallbackConfirmedAt = utils.UnixPtr(now)
				s.metrics.IncFallback(string(txn.Operator))
			}
		} else if d.Note != "" {
			txn.StatusReason = dbm.TruncateReason(d.Note)
		}
		if err := txns.Save(ctx, txn); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}

		if !d.Settled() || txn.PaymentRecordID == nil {
			return nil
		}
		s.log.Info("transaction settled",
			zap.String("reference", txn.Reference),
			zap.String("operator", string(txn.Operator)),
			zap.String("from", string(d.From)),
			zap.String("to", string(d.To)),
			zap.String("source", string(obs.Source)))
		return s.settlePayment(ctx, tx, txn, out, now)
	})
	if err != nil {
		return nil, err
	}
	if out.Flagged {
		s.notify(out)
	}
	return out, nil
}

// notify runs after commit so a slow mail relay never holds a row lock.
func (s *reconciliationService) notify(out *Outcome) {
	if s.alerts == nil || out.Payment == nil {
		return
	}
	alert := Alert{
		TransactionNumber: out.Payment.TransactionNumber,
		Operator:          string(out.Payment.Operator),
		Amount:            out.Payment.GrossAmount.StringFixed(2) + " " + out.Payment.Currency,
		Reason:            out.Payment.ReconciliationNote,
		At:                s.clock.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.alerts.ManualReconciliation(ctx, alert); err != nil {
			s.log.Warn("manual reconciliation alert not delivered", zap.Error(err))
		}
	}()
}

// recordEvidence keeps the raw operator payloads. Once a transaction is
// settled its payloads are frozen; late reports land in the late columns.
func recordEvidence(txn *dbm.GatewayTransaction, obs ledger.Observation, now time.Time) {
	if txn.Status.IsTerminal() {
		if obs.Source == dbm.SourceCallback {
			txn.LateCallbackAt = utils.UnixPtr(now)
			if len(obs.Raw) > 0 {
				txn.LateCallbackPayload = datatypes.JSON(obs.Raw)
			}
		}
		return
	}
	switch obs.Source {
	case dbm.SourceCallback:
		txn.CallbackAt = utils.UnixPtr(now)
		if len(obs.Raw) > 0 {
			txn.CallbackPayload = datatypes.JSON(obs.Raw)
		}
	case dbm.SourcePoll:
		txn.LastPolledAt = utils.UnixPtr(now)
		txn.PollCount++
		if len(obs.Raw) > 0 {
			txn.StatusPayload = datatypes.JSON(obs.Raw)
		}
	case dbm.SourceInitiation:
		if len(obs.Raw) > 0 {
			txn.ResponsePayload = datatypes.JSON(obs.Raw)
		}
	}
}

func (s *reconciliationService) logDuplicate(txn *dbm.GatewayTransaction, obs ledger.Observation) {
	s.log.Info("late notification for settled transaction",
		zap.String("reference", txn.Reference),
		zap.String("status", string(txn.Status)),
		zap.String("observed", string(obs.Status)),
		zap.String("source", string(obs.Source)))
}

// flagContradiction marks the payment for review when a late report
// contradicts the settled outcome: a failure for a debit the timeout fallback
// confirmed, or a success for a debit already closed without one.
func (s *reconciliationService) flagContradiction(ctx context.Context, tx *gorm.DB, txn *dbm.GatewayTransaction, obs ledger.Observation, out *Outcome) error {
	if txn.PaymentRecordID == nil {
		return nil
	}
	var note string
	switch {
	case txn.FallbackConfirmed() && obs.Status == gateways.StatusFailed:
		note = "operator reported failure after fallback confirmation: " + obs.Reason
	case txn.Status != dbm.TxnStatusSuccessful && obs.Status == gateways.StatusSuccessful:
		note = fmt.Sprintf("operator reported success after transaction closed as %s", txn.Status)
		if obs.ConfirmationCode != "" {
			note += " (confirmation " + obs.ConfirmationCode + ")"
		}
	default:
		return nil
	}
	payments := s.payments.WithTx(tx)
	payment, err := payments.LockByID(ctx, *txn.PaymentRecordID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if payment == nil || payment.NeedsManualReconciliation {
		return nil
	}
	s.log.Error("operator report contradicts settled transaction",
		zap.String("reference", txn.Reference),
		zap.String("status", string(txn.Status)),
		zap.String("observed", string(obs.Status)),
		zap.String("source", string(obs.Source)),
		zap.String("reason", obs.Reason))
	payment.NeedsManualReconciliation = true
	payment.ReconciliationNote = truncateNote(note)
	if err := payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	out.Payment = payment
	out.Flagged = true
	return nil
}

func (s *reconciliationService) settlePayment(ctx context.Context, tx *gorm.DB, txn *dbm.GatewayTransaction, out *Outcome, now time.Time) error {
	payments := s.payments.WithTx(tx)
	payment, err := payments.LockByID(ctx, *txn.PaymentRecordID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if payment == nil {
		s.log.Error("settled transaction has no payment record", zap.String("reference", txn.Reference))
		return nil
	}
	out.Payment = payment
	if payment.Status != dbm.PaymentStatusInProgress {
		return nil
	}

	target, _ := ledger.PaymentStatusFor(txn.Status)
	payment.Status = target
	payment.SettledAt = utils.UnixPtr(now)
	if txn.OperatorReference != nil {
		payment.OperatorReference = *txn.OperatorReference
	}
	if target == dbm.PaymentStatusSucceeded {
		payment.ConfirmedAt = utils.UnixPtr(now)
		payment.ConfirmationCode = txn.ConfirmationCode
	} else {
		payment.FailureReason = txn.StatusReason
	}
	if err := payments.Save(ctx, payment); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if target != dbm.PaymentStatusSucceeded {
		return nil
	}

	res, err := s.activation.Activate(ctx, tx, payment)
	if err != nil {
		return err
	}
	out.Activation = res
	out.Flagged = res.Flagged
	return nil
}

func (s *reconciliationService) ApplyCallback(ctx context.Context, operator dbm.Operator, body []byte) (*Outcome, error) {
	provider, err := s.registry.Get(operator)
	if err != nil {
		return nil, err
	}
	ev, err := provider.Callbacks.ParseCallback(body)
	if err != nil {
		return nil, err
	}

	var txn *dbm.GatewayTransaction
	if ev.Reference != "" {
		txn, err = s.txns.FindByReference(ctx, ev.Reference)
	}
	if err == nil && txn == nil && ev.OperatorReference != "" {
		txn, err = s.txns.FindByOperatorReference(ctx, operator, ev.OperatorReference)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if txn == nil || txn.Operator != operator {
		s.log.Warn("callback for unknown transaction",
			zap.String("operator", string(operator)),
			zap.String("reference", ev.Reference),
			zap.String("operator_reference", ev.OperatorReference))
		return &Outcome{Ignored: true}, nil
	}
	return s.apply(ctx, txn.ID, ledger.FromCallback(ev))
}

// Acknowledge records the operator's acceptance of a debit request. A
// callback that already settled the transaction is left untouched apart from
// the reference and payloads.
func (s *reconciliationService) Acknowledge(ctx context.Context, txnID uuid.UUID, res *gateways.DebitResult) error {
	return s.acknowledge(ctx, txnID, res, "")
}

// HoldUnconfirmed keeps a transaction open when its debit request failed
// after leaving for the operator. It is tracked under the reference the
// operator would know it by, like an accepted debit.
func (s *reconciliationService) HoldUnconfirmed(ctx context.Context, txnID uuid.UUID, f *gateways.Failure) error {
	s.metrics.IncGatewayFailure(f.Operator, f.Operation, f.Transient)
	return s.acknowledge(ctx, txnID, &gateways.DebitResult{
		PendingReference: f.PendingReference,
		RawResponse:      f.Raw,
	}, "debit request outcome unknown: "+f.Reason)
}

func (s *reconciliationService) acknowledge(ctx context.Context, txnID uuid.UUID, res *gateways.DebitResult, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txns := s.txns.WithTx(tx)
		txn, err := txns.LockByID(ctx, txnID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if txn == nil {
			return utils.ErrTransactionNotFound
		}
		if res.PendingReference != "" {
			ref := res.PendingReference
			txn.OperatorReference = &ref
		}
		if len(res.RawRequest) > 0 {
			txn.RequestPayload = datatypes.JSON(res.RawRequest)
		}
		if len(res.RawResponse) > 0 {
			txn.ResponsePayload = datatypes.JSON(res.RawResponse)
		}
		if txn.Status == dbm.TxnStatusInitiated {
			txn.Status = dbm.TxnStatusPending
			txn.PendingAt = utils.UnixPtr(s.clock.Now())
			if note != "" {
				txn.StatusReason = dbm.TruncateReason(note)
			}
			s.metrics.IncTransition(string(txn.Operator), string(dbm.TxnStatusPending), string(dbm.SourceInitiation))
		}
		if err := txns.Save(ctx, txn); err != nil {
			if repositories.IsUniqueViolation(err) {
				return fmt.Errorf("%w: operator reference %s already recorded", utils.ErrDatabaseError, res.PendingReference)
			}
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
}

// FailInitiation settles a transaction whose debit request was refused.
func (s *reconciliationService) FailInitiation(ctx context.Context, txnID uuid.UUID, cause error) (*Outcome, error) {
	reason := cause.Error()
	var raw json.RawMessage
	if f, ok := gateways.AsFailure(cause); ok {
		reason = f.Reason
		raw = f.Raw
		s.metrics.IncGatewayFailure(f.Operator, f.Operation, f.Transient)
	}
	return s.apply(ctx, txnID, ledger.Observation{
		Status: gateways.StatusFailed,
		Reason: reason,
		Source: dbm.SourceInitiation,
		Raw:    raw,
	})
}

// Poll queries the operator for one outstanding transaction and applies the
// answer. When the status call fails the timeout fallback may apply instead.
func (s *reconciliationService) Poll(ctx context.Context, txnID uuid.UUID) (*Outcome, error) {
	txn, err := s.txns.FindByID(ctx, txnID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if txn == nil {
		return nil, utils.ErrTransactionNotFound
	}
	return s.poll(ctx, txn)
}

var errNotAcknowledged = errors.New("transaction not yet acknowledged by operator")

func (s *reconciliationService) poll(ctx context.Context, txn *dbm.GatewayTransaction) (*Outcome, error) {
	if txn.Status.IsTerminal() {
		return &Outcome{Transaction: txn, Decision: ledger.Decision{From: txn.Status, To: txn.Status, Duplicate: true}}, nil
	}
	if txn.OperatorReference == nil || *txn.OperatorReference == "" {
		return nil, errNotAcknowledged
	}
	provider, err := s.registry.Get(txn.Operator)
	if err != nil {
		return nil, err
	}

	res, qerr := provider.Adapter.QueryStatus(ctx, *txn.OperatorReference)
	if qerr == nil {
		return s.apply(ctx, txn.ID, ledger.FromStatus(res))
	}

	if f, ok := gateways.AsFailure(qerr); ok {
		s.metrics.IncGatewayFailure(f.Operator, f.Operation, f.Transient)
	}
	now := s.clock.Now()
	if !ledger.FallbackEligible(txn, provider.Fallback, now) {
		return nil, qerr
	}
	age := now.Sub(time.Unix(txn.CreatedAt, 0))
	s.log.Warn("status query failed, applying timeout fallback",
		zap.String("reference", txn.Reference),
		zap.String("operator", string(txn.Operator)),
		zap.Duration("age", age),
		zap.Error(qerr))
	return s.apply(ctx, txn.ID, ledger.TimeoutFallback(age))
}

// Sweep polls every recent outstanding transaction once. Per-item failures
// are logged and counted; only the listing query can fail the sweep.
func (s *reconciliationService) Sweep(ctx context.Context) (*SweepReport, error) {
	began := time.Now()
	outstanding, err := s.txns.ListOutstanding(ctx, s.clock.Now().Add(-s.cfg.RecencyWindow), s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	tally := &sweepTally{r: SweepReport{Scanned: len(outstanding)}}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range outstanding {
		txn := outstanding[i]
		g.Go(func() error {
			s.sweepOne(gctx, &txn, tally)
			return nil
		})
	}
	_ = g.Wait()

	report := tally.r
	report.Duration = time.Since(began)
	s.metrics.ObserveSweep(report.Duration)
	s.log.Info("sweep finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("polled", report.Polled),
		zap.Int("settled", report.Settled),
		zap.Int("fallbacks", report.Fallbacks),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration))
	return &report, nil
}

func (s *reconciliationService) sweepOne(ctx context.Context, txn *dbm.GatewayTransaction, tally *sweepTally) {
	op := string(txn.Operator)
	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("sweep item panicked", zap.String("reference", txn.Reference), zap.Any("panic", rec))
			tally.add(func(r *SweepReport) { r.Errors++ })
			s.metrics.IncSweepItem(op, "error")
		}
	}()

	out, err := s.poll(ctx, txn)
	switch {
	case errors.Is(err, errNotAcknowledged):
		tally.add(func(r *SweepReport) { r.Skipped++ })
		s.metrics.IncSweepItem(op, "skipped")
		return
	case err != nil:
		s.log.Warn("sweep item failed",
			zap.String("reference", txn.Reference),
			zap.String("operator", op),
			zap.Error(err))
		tally.add(func(r *SweepReport) { r.Polled++; r.Errors++ })
		s.metrics.IncSweepItem(op, "error")
		return
	}

	result := "unchanged"
	tally.add(func(r *SweepReport) {
		r.Polled++
		if out.Decision.Settled() {
			r.Settled++
			result = "settled"
			if out.Transaction != nil && out.Transaction.FallbackConfirmed() {
				r.Fallbacks++
				result = "fallback"
			}
		}
	})
	s.metrics.IncSweepItem(op, result)
}

// Expire moves transactions abandoned beyond the sweep window to timeout.
func (s *reconciliationService) Expire(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan < s.cfg.RecencyWindow {
		olderThan = s.cfg.RecencyWindow
	}
	stale, err := s.txns.ListStale(ctx, s.clock.Now().Add(-olderThan), s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	expired := 0
	for _, txn := range stale {
		out, err := s.terminate(ctx, txn.ID, dbm.TxnStatusTimeout,
			fmt.Sprintf("no outcome after %s", olderThan))
		if err != nil {
			s.log.Warn("expire failed", zap.String("reference", txn.Reference), zap.Error(err))
			continue
		}
		if out.Decision.Changed {
			expired++
		}
	}
	return expired, nil
}

// Cancel is the administrative cancellation of every open transaction of a payment.
func (s *reconciliationService) Cancel(ctx context.Context, transactionNumber, reason string) (*Outcome, error) {
	payment, err := s.payments.FindByTransactionNumber(ctx, transactionNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if payment == nil {
		return nil, utils.ErrPaymentNotFound
	}
	txns, err := s.txns.ListByPaymentRecord(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if reason == "" {
		reason = "cancelled by operator"
	}

	var last *Outcome
	for _, txn := range txns {
		if txn.Status.IsTerminal() {
			continue
		}
		out, err := s.terminate(ctx, txn.ID, dbm.TxnStatusCancelled, reason)
		if err != nil {
			return nil, err
		}
		last = out
	}
	if last == nil {
		return nil, fmt.Errorf("%w: payment %s has no open transaction", utils.ErrInvalidRequest, transactionNumber)
	}
	return last, nil
}

func (s *reconciliationService) terminate(ctx context.Context, txnID uuid.UUID, target dbm.TransactionStatus, reason string) (*Outcome, error) {
	out := &Outcome{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txns := s.txns.WithTx(tx)
		txn, err := txns.LockByID(ctx, txnID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if txn == nil {
			return utils.ErrTransactionNotFound
		}
		out.Transaction = txn
		d, err := ledger.Terminate(txn.Status, target)
		if err != nil {
			return err
		}
		out.Decision = d
		if !d.Changed {
			return nil
		}
		now := s.clock.Now()
		txn.Status = d.To
		txn.CompletedAt = utils.UnixPtr(now)
		txn.ConfirmationSource = dbm.SourceAdmin
		txn.StatusReason = dbm.TruncateReason(reason)
		if err := txns.Save(ctx, txn); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		s.metrics.IncTransition(string(txn.Operator), string(d.To), string(dbm.SourceAdmin))
		if txn.PaymentRecordID == nil {
			return nil
		}
		return s.settlePayment(ctx, tx, txn, out, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
