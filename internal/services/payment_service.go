package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"passpay/internal/gateways"
	"passpay/internal/infra"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/response_models"
	"passpay/internal/repositories"
	"passpay/pkg/utils"
)

type InitiatePaymentInput struct {
	PolicyCode     string
	SubscriptionID string
	Amount         string
	PayerNumber    string
	Operator       string
	Purpose        string
}

type PaymentService interface {
	Initiate(ctx context.Context, in InitiatePaymentInput) (*response_models.InitiatePaymentResponse, error)
	// GetStatus returns the last recorded status; it never calls an operator.
	GetStatus(ctx context.Context, transactionNumber string) (*response_models.PaymentStatusResponse, error)
	History(ctx context.Context, policyCode string) (*response_models.PolicyPaymentsResponse, error)
}

type paymentService struct {
	db         *gorm.DB
	payments   repositories.PaymentRepository
	txns       repositories.TransactionRepository
	subs       repositories.SubscriptionRepository
	policies   repositories.PolicyRepository
	registry   *gateways.Registry
	reconciler ReconciliationService
	ids        infra.IDGenerator
	log        *zap.Logger
}

func NewPaymentService(
	db *gorm.DB,
	payments repositories.PaymentRepository,
	txns repositories.TransactionRepository,
	subs repositories.SubscriptionRepository,
	policies repositories.PolicyRepository,
	registry *gateways.Registry,
	reconciler ReconciliationService,
	ids infra.IDGenerator,
	log *zap.Logger,
) PaymentService {
	return &paymentService{
		db:         db,
		payments:   payments,
		txns:       txns,
		subs:       subs,
		policies:   policies,
		registry:   registry,
		reconciler: reconciler,
		ids:        ids,
		log:        log.Named("payment.initiate"),
	}
}

func (p *paymentService) Initiate(ctx context.Context, in InitiatePaymentInput) (*response_models.InitiatePaymentResponse, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil || !amount.IsPositive() {
		return nil, utils.ErrInvalidAmount
	}
	amount = amount.Round(2)

	payer, err := gateways.CanonicalMSISDN(in.PayerNumber)
	if err != nil {
		return nil, err
	}
	operator, err := p.registry.Resolve(in.Operator, payer)
	if err != nil {
		return nil, err
	}
	provider, err := p.registry.Get(operator)
	if err != nil {
		return nil, err
	}

	sub, err := p.resolveSubscription(ctx, in)
	if err != nil {
		return nil, err
	}
	purpose, err := purposeFor(sub, in.Purpose)
	if err != nil {
		return nil, err
	}
	if purpose == dbm.PurposeInitialSubscription && !sub.Product.AcceptsAmount(amount) {
		return nil, fmt.Errorf("%w: %s for product %s", utils.ErrAmountOutOfRange, amount.StringFixed(2), sub.Product.Code)
	}

	payment := &dbm.PaymentRecord{
		TransactionNumber: p.ids.TransactionNumber(),
		SubscriptionID:    sub.ID,
		ClientID:          sub.ClientID,
		GrossAmount:       amount,
		Fee:               decimal.Zero,
		Currency:          dbm.DefaultCurrency,
		Operator:          operator,
		PayerNumber:       payer,
		Purpose:           purpose,
		Status:            dbm.PaymentStatusInProgress,
	}
	paymentID := uuid.New()
	payment.ID = paymentID
	txn := &dbm.GatewayTransaction{
		Reference:       p.ids.GatewayReference(),
		Operator:        operator,
		PaymentRecordID: &paymentID,
		Amount:          amount,
		Currency:        dbm.DefaultCurrency,
		PayerNumber:     payer,
		Purpose:         purpose,
		Status:          dbm.TxnStatusInitiated,
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Serializes initiations for one subscription.
		if _, err := p.subs.WithTx(tx).LockByID(ctx, sub.ID); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		open, err := p.payments.WithTx(tx).ListBySubscription(ctx, sub.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		for _, existing := range open {
			if existing.Status == dbm.PaymentStatusInProgress && existing.Purpose == purpose {
				return fmt.Errorf("%w: %s", utils.ErrPaymentInProgress, existing.TransactionNumber)
			}
		}
		if err := p.payments.WithTx(tx).Create(ctx, payment); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if err := p.txns.WithTx(tx).Create(ctx, txn); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := p.log.With(
		zap.String("transaction_number", payment.TransactionNumber),
		zap.String("reference", txn.Reference),
		zap.String("operator", string(operator)))

	res, derr := provider.Adapter.InitiateDebit(ctx, gateways.DebitRequest{
		Amount:      amount,
		Currency:    dbm.DefaultCurrency,
		PayerNumber: payer,
		Reference:   txn.Reference,
		Description: fmt.Sprintf("%s %s", sub.Product.Name, sub.Number),
	})
	if derr != nil {
		// The caller may have gone away; the ledger still has to learn the outcome.
		recordCtx := context.WithoutCancel(ctx)
		reason := derr.Error()
		f, ok := gateways.AsFailure(derr)
		if ok {
			reason = f.Reason
		}
		if ok && f.PendingReference != "" {
			// The operator may have accepted the debit. Keep the
			// transaction open so a callback, the sweep or Expire settles it.
			log.Warn("debit request outcome unknown",
				zap.String("pending_reference", f.PendingReference), zap.Error(derr))
			if herr := p.reconciler.HoldUnconfirmed(recordCtx, txn.ID, f); herr != nil {
				log.Error("could not hold unconfirmed debit", zap.Error(herr))
			}
			return nil, fmt.Errorf("%w: %s (payment %s is being reconciled)",
				utils.ErrPaymentInitiationFailed, reason, payment.TransactionNumber)
		}
		log.Warn("debit request refused", zap.Error(derr))
		if _, ferr := p.reconciler.FailInitiation(recordCtx, txn.ID, derr); ferr != nil {
			log.Error("could not record initiation failure", zap.Error(ferr))
		}
		return nil, fmt.Errorf("%w: %s", utils.ErrPaymentInitiationFailed, reason)
	}

	if err := p.reconciler.Acknowledge(ctx, txn.ID, res); err != nil {
		// The debit is live at the operator; the sweep cannot poll it
		// without the reference, so surface the error.
		log.Error("could not record operator acknowledgement",
			zap.String("pending_reference", res.PendingReference), zap.Error(err))
		return nil, err
	}
	log.Info("debit requested", zap.String("pending_reference", res.PendingReference))

	return &response_models.InitiatePaymentResponse{
		TransactionNumber: payment.TransactionNumber,
		Reference:         txn.Reference,
		PendingReference:  res.PendingReference,
		Operator:          string(operator),
		Status:            string(dbm.PaymentStatusInProgress),
		Amount:            amount.StringFixed(2),
		Currency:          dbm.DefaultCurrency,
		Instructions:      provider.Instructions,
	}, nil
}

func (p *paymentService) resolveSubscription(ctx context.Context, in InitiatePaymentInput) (*dbm.Subscription, error) {
	var id uuid.UUID
	switch {
	case in.SubscriptionID != "":
		parsed, err := uuid.Parse(in.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("%w: subscription_id", utils.ErrInvalidRequest)
		}
		id = parsed
	case in.PolicyCode != "":
		policy, err := p.policies.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(in.PolicyCode)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if policy == nil {
			return nil, utils.ErrPolicyNotFound
		}
		id = policy.SubscriptionID
	default:
		return nil, fmt.Errorf("%w: policy_code or subscription_id is required", utils.ErrInvalidRequest)
	}

	sub, err := p.subs.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if sub == nil {
		return nil, utils.ErrSubscriptionNotFound
	}
	return sub, nil
}

// purposeFor defaults the purpose from the subscription state and rejects
// combinations that cannot be paid.
func purposeFor(sub *dbm.Subscription, requested string) (dbm.Purpose, error) {
	purpose := dbm.Purpose(requested)
	if requested == "" {
		purpose = dbm.PurposeContribution
		if sub.Status == dbm.SubStatusPending {
			purpose = dbm.PurposeInitialSubscription
		}
	}
	if !purpose.Valid() {
		return "", fmt.Errorf("%w: purpose %q", utils.ErrInvalidRequest, requested)
	}

	switch {
	case purpose == dbm.PurposeInitialSubscription && sub.Status != dbm.SubStatusPending:
		return "", fmt.Errorf("%w: subscription %s is %s", utils.ErrSubscriptionNotPayable, sub.Number, sub.Status)
	case purpose != dbm.PurposeInitialSubscription && sub.Status != dbm.SubStatusActivated:
		return "", fmt.Errorf("%w: subscription %s is %s", utils.ErrSubscriptionNotPayable, sub.Number, sub.Status)
	case !sub.Product.IsActive && purpose == dbm.PurposeInitialSubscription:
		return "", fmt.Errorf("%w: product %s is not on sale", utils.ErrSubscriptionNotPayable, sub.Product.Code)
	}
	return purpose, nil
}

func (p *paymentService) GetStatus(ctx context.Context, transactionNumber string) (*response_models.PaymentStatusResponse, error) {
	payment, err := p.payments.FindByTransactionNumber(ctx, transactionNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if payment == nil {
		return nil, utils.ErrPaymentNotFound
	}
	txns, err := p.txns.ListByPaymentRecord(ctx, payment.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	policy, err := p.policies.FindBySubscription(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	var latest *dbm.GatewayTransaction
	if len(txns) > 0 {
		latest = &txns[0]
	}
	resp := toPaymentStatus(payment, latest)
	if policy != nil && payment.Status == dbm.PaymentStatusSucceeded {
		resp.PolicyCode = policy.Code
	}
	return &resp, nil
}

func (p *paymentService) History(ctx context.Context, policyCode string) (*response_models.PolicyPaymentsResponse, error) {
	policy, err := p.policies.FindByCode(ctx, strings.ToUpper(policyCode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if policy == nil {
		return nil, utils.ErrPolicyNotFound
	}
	payments, err := p.payments.ListBySubscription(ctx, policy.SubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}

	out := &response_models.PolicyPaymentsResponse{
		PolicyCode: policy.Code,
		Payments:   make([]response_models.PaymentStatusResponse, 0, len(payments)),
	}
	for i := range payments {
		txns, err := p.txns.ListByPaymentRecord(ctx, payments[i].ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		var latest *dbm.GatewayTransaction
		if len(txns) > 0 {
			latest = &txns[0]
		}
		item := toPaymentStatus(&payments[i], latest)
		item.PolicyCode = policy.Code
		out.Payments = append(out.Payments, item)
	}
	return out, nil
}

func toPaymentStatus(payment *dbm.PaymentRecord, txn *dbm.GatewayTransaction) response_models.PaymentStatusResponse {
	resp := response_models.PaymentStatusResponse{
		TransactionNumber:   payment.TransactionNumber,
		Status:              string(payment.Status),
		Operator:            string(payment.Operator),
		Purpose:             string(payment.Purpose),
		GrossAmount:         payment.GrossAmount.StringFixed(2),
		Fee:                 payment.Fee.StringFixed(2),
		NetAmount:           payment.NetAmount.StringFixed(2),
		Currency:            payment.Currency,
		PayerNumber:         payment.PayerNumber,
		OperatorReference:   payment.OperatorReference,
		ConfirmationCode:    payment.ConfirmationCode,
		FailureReason:       payment.FailureReason,
		NeedsReconciliation: payment.NeedsManualReconciliation,
		CreatedAt:           utils.FormatRFC3339(utils.FromUnixSeconds(payment.CreatedAt)),
		ConfirmedAt:         utils.FormatUnix(payment.ConfirmedAt),
	}
	if txn != nil {
		resp.GatewayStatus = string(txn.Status)
		resp.ConfirmationSource = string(txn.ConfirmationSource)
		resp.FallbackConfirmed = txn.FallbackConfirmed()
		if resp.OperatorReference == "" && txn.OperatorReference != nil {
			resp.OperatorReference = *txn.OperatorReference
		}
	}
	return resp
}
