package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"passpay/internal/clock"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/observability/metrics"
	"passpay/internal/repositories"
	"passpay/pkg/utils"
)

type ActivationResult struct {
	Policy    *dbm.PolicyNumber
	Activated bool // subscription moved pending -> activated in this call
	Existing  bool // a policy number was already issued
	Skipped   bool // nothing to activate for this purpose
	Flagged   bool // left for manual reconciliation
}

type BackfillReport struct {
	Scanned  int
	Issued   int
	Failed   int
	Resolved int // flagged payments cleared by the issued numbers
}

// ActivationService turns a confirmed payment into an activated subscription
// with a policy number.
type ActivationService interface {
	// Activate runs inside the caller's transaction, right after the payment
	// was marked succeeded under lock. It never undoes the payment.
	Activate(ctx context.Context, tx *gorm.DB, payment *dbm.PaymentRecord) (*ActivationResult, error)
	Retry(ctx context.Context, transactionNumber string) (*ActivationResult, error)
	Backfill(ctx context.Context, limit int) (*BackfillReport, error)
	ListFlagged(ctx context.Context, limit int) ([]dbm.PaymentRecord, error)
	RecomputeClientStats(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) error
}

type activationService struct {
	db        *gorm.DB
	subs      repositories.SubscriptionRepository
	payments  repositories.PaymentRepository
	policies  repositories.PolicyRepository
	allocator PolicyAllocator
	clock     clock.Clock
	metrics   *metrics.ReconcileMetrics
	log       *zap.Logger
}

func NewActivationService(
	db *gorm.DB,
	subs repositories.SubscriptionRepository,
	payments repositories.PaymentRepository,
	policies repositories.PolicyRepository,
	allocator PolicyAllocator,
	clk clock.Clock,
	m *metrics.ReconcileMetrics,
	log *zap.Logger,
) ActivationService {
	return &activationService{
		db:        db,
		subs:      subs,
		payments:  payments,
		policies:  policies,
		allocator: allocator,
		clock:     clk,
		metrics:   m,
		log:       log.Named("payment.activation"),
	}
}

func (s *activationService) Activate(ctx context.Context, tx *gorm.DB, payment *dbm.PaymentRecord) (*ActivationResult, error) {
	if payment.Purpose != dbm.PurposeInitialSubscription {
		return &ActivationResult{Skipped: true}, nil
	}

	res, err := s.runSteps(ctx, tx, payment, dbm.AllocationAutomatic)
	if err == nil {
		s.metrics.IncActivation("activated")
		return res, nil
	}

	s.log.Error("activation failed, payment left for manual reconciliation",
		zap.String("transaction_number", payment.TransactionNumber),
		zap.Error(err))
	payment.NeedsManualReconciliation = true
	payment.ReconciliationNote = truncateNote(fmt.Sprintf("activation failed: %v", err))
	if serr := s.payments.WithTx(tx).Save(ctx, payment); serr != nil {
		return nil, fmt.Errorf("%w: flag payment: %v", utils.ErrDatabaseError, serr)
	}
	s.metrics.IncActivation("flagged")
	return &ActivationResult{Flagged: true}, nil
}

// runSteps executes activation inside a savepoint. An allocation failure is
// retried once from the policy lookup; any failure rolls the savepoint back.
func (s *activationService) runSteps(ctx context.Context, tx *gorm.DB, payment *dbm.PaymentRecord, mode dbm.AllocationMode) (*ActivationResult, error) {
	var res *ActivationResult
	err := tx.Transaction(func(sp *gorm.DB) error {
		sub, activated, err := s.activateSubscription(ctx, sp, payment.SubscriptionID)
		if err != nil {
			return err
		}

		existing, err := s.policies.WithTx(sp).FindBySubscription(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if existing != nil {
			res = &ActivationResult{Policy: existing, Activated: activated, Existing: true}
			return nil
		}

		policy, err := s.allocator.Allocate(ctx, sp, sub, mode, s.clock.Now())
		if errors.Is(err, utils.ErrPolicyAllocation) {
			s.log.Warn("policy allocation failed, retrying once",
				zap.String("subscription_id", sub.ID.String()), zap.Error(err))
			policy, err = s.allocator.Allocate(ctx, sp, sub, mode, s.clock.Now())
		}
		if err != nil {
			return err
		}

		if err := s.RecomputeClientStats(ctx, sp, sub.ClientID); err != nil {
			return err
		}
		res = &ActivationResult{Policy: policy, Activated: activated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *activationService) activateSubscription(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*dbm.Subscription, bool, error) {
	subs := s.subs.WithTx(tx)
	sub, err := subs.LockByID(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return nil, false, utils.ErrSubscriptionNotFound
	}

	switch sub.Status {
	case dbm.SubStatusActivated:
		return sub, false, nil
	case dbm.SubStatusPending:
	default:
		return nil, false, fmt.Errorf("%w: subscription %s is %s", utils.ErrSubscriptionNotPayable, sub.Number, sub.Status)
	}

	now := s.clock.Now()
	expires := now.AddDate(0, 0, sub.Product.Validity())
	sub.Status = dbm.SubStatusActivated
	sub.ActivatedAt = utils.UnixPtr(now)
	sub.ExpiresAt = utils.UnixPtr(expires)
	sub.InitialPaymentReceived = true
	if err := subs.Save(ctx, sub); err != nil {
		return nil, false, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	s.log.Info("subscription activated",
		zap.String("subscription", sub.Number),
		zap.Time("expires_at", expires))
	return sub, true, nil
}

// RecomputeClientStats rebuilds the client aggregates from its subscriptions.
// Activated subscriptions count as active; activated and pending ones count
// towards the subscribed value.
func (s *activationService) RecomputeClientStats(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) error {
	subs := s.subs.WithTx(tx)
	client, err := subs.FindClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if client == nil {
		return nil
	}
	list, err := subs.ListByClient(ctx, clientID)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	active := 0
	total := decimal.Zero
	for _, sub := range list {
		switch sub.Status {
		case dbm.SubStatusActivated:
			active++
			total = total.Add(sub.Amount)
		case dbm.SubStatusPending:
			total = total.Add(sub.Amount)
		}
	}
	client.ActiveSubscriptionCount = active
	client.TotalSubscribedValue = total
	client.StatsUpdatedAt = utils.UnixPtr(s.clock.Now())
	if err := subs.SaveClientStats(ctx, client); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return nil
}

func (s *activationService) Retry(ctx context.Context, transactionNumber string) (*ActivationResult, error) {
	var res *ActivationResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payments := s.payments.WithTx(tx)
		found, err := payments.FindByTransactionNumber(ctx, transactionNumber)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if found == nil {
			return utils.ErrPaymentNotFound
		}
		payment, err := payments.LockByID(ctx, found.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if !payment.NeedsManualReconciliation || payment.Status != dbm.PaymentStatusSucceeded {
			return utils.ErrNotFlagged
		}

		res, err = s.runSteps(ctx, tx, payment, dbm.AllocationAutomatic)
		if err != nil {
			return err
		}
		payment.NeedsManualReconciliation = false
		payment.ReconciliationNote = truncateNote("resolved by manual retry: " + res.Policy.Code)
		if err := payments.Save(ctx, payment); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncActivation("retried")
	return res, nil
}

// Backfill issues numbers for activated subscriptions that never got one,
// stamped with their activation time.
func (s *activationService) Backfill(ctx context.Context, limit int) (*BackfillReport, error) {
	pending, err := s.subs.ListActivatedWithoutPolicy(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	report := &BackfillReport{Scanned: len(pending)}
	for i := range pending {
		sub := &pending[i]
		at := s.clock.Now()
		if sub.ActivatedAt != nil {
			at = time.Unix(*sub.ActivatedAt, 0)
		}
		resolved := 0
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			policy, err := s.allocator.Allocate(ctx, tx, sub, dbm.AllocationBackfill, at)
			if err != nil {
				return err
			}
			if resolved, err = s.resolveFlagged(ctx, tx, sub.ID, "resolved by backfill: "+policy.Code); err != nil {
				return err
			}
			return s.RecomputeClientStats(ctx, tx, sub.ClientID)
		})
		if err != nil {
			report.Failed++
			s.log.Error("backfill allocation failed", zap.String("subscription", sub.Number), zap.Error(err))
			continue
		}
		report.Issued++
		report.Resolved += resolved
	}
	return report, nil
}

// resolveFlagged clears the manual reconciliation flag on the succeeded
// payments of a subscription that now holds its policy number.
func (s *activationService) resolveFlagged(ctx context.Context, tx *gorm.DB, subscriptionID uuid.UUID, note string) (int, error) {
	payments := s.payments.WithTx(tx)
	list, err := payments.ListBySubscription(ctx, subscriptionID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	n := 0
	for i := range list {
		p := &list[i]
		if !p.NeedsManualReconciliation || p.Status != dbm.PaymentStatusSucceeded {
			continue
		}
		p.NeedsManualReconciliation = false
		p.ReconciliationNote = truncateNote(note)
		if err := payments.Save(ctx, p); err != nil {
			return n, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		n++
	}
	return n, nil
}

func (s *activationService) ListFlagged(ctx context.Context, limit int) ([]dbm.PaymentRecord, error) {
	list, err := s.payments.ListNeedingReconciliation(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	return list, nil
}

func truncateNote(note string) string {
	r := []rune(note)
	if len(r) <= 255 {
		return note
	}
	return string(r[:255])
}
