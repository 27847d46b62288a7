package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"passpay/internal/models/db_models"
)

type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Create(ctx context.Context, txn *db_models.GatewayTransaction) error
	Save(ctx context.Context, txn *db_models.GatewayTransaction) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.GatewayTransaction, error)
	FindByReference(ctx context.Context, reference string) (*db_models.GatewayTransaction, error)
	FindByOperatorReference(ctx context.Context, operator db_models.Operator, reference string) (*db_models.GatewayTransaction, error)
	// LockByID reads the row with SELECT ... FOR UPDATE; only meaningful inside a transaction.
	LockByID(ctx context.Context, id uuid.UUID) (*db_models.GatewayTransaction, error)
	ListOutstanding(ctx context.Context, createdSince time.Time, limit int) ([]db_models.GatewayTransaction, error)
	ListStale(ctx context.Context, createdBefore time.Time, limit int) ([]db_models.GatewayTransaction, error)
	ListByPaymentRecord(ctx context.Context, paymentID uuid.UUID) ([]db_models.GatewayTransaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepository{db: tx}
}

func (r *transactionRepository) Create(ctx context.Context, txn *db_models.GatewayTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *transactionRepository) Save(ctx context.Context, txn *db_models.GatewayTransaction) error {
	return r.db.WithContext(ctx).Save(txn).Error
}

func (r *transactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.GatewayTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *transactionRepository) FindByReference(ctx context.Context, reference string) (*db_models.GatewayTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("reference = ?", reference))
}

func (r *transactionRepository) FindByOperatorReference(ctx context.Context, operator db_models.Operator, reference string) (*db_models.GatewayTransaction, error) {
	return r.first(r.db.WithContext(ctx).Where("operator = ? AND operator_reference = ?", operator, reference))
}

func (r *transactionRepository) LockByID(ctx context.Context, id uuid.UUID) (*db_models.GatewayTransaction, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *transactionRepository) ListOutstanding(ctx context.Context, createdSince time.Time, limit int) ([]db_models.GatewayTransaction, error) {
	var txns []db_models.GatewayTransaction
	q := r.db.WithContext(ctx).
		Where("status IN ?", []db_models.TransactionStatus{db_models.TxnStatusInitiated, db_models.TxnStatusPending}).
		Where("created_at >= ?", createdSince.Unix()).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) ListStale(ctx context.Context, createdBefore time.Time, limit int) ([]db_models.GatewayTransaction, error) {
	var txns []db_models.GatewayTransaction
	q := r.db.WithContext(ctx).
		Where("status IN ?", []db_models.TransactionStatus{db_models.TxnStatusInitiated, db_models.TxnStatusPending}).
		Where("created_at < ?", createdBefore.Unix()).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) ListByPaymentRecord(ctx context.Context, paymentID uuid.UUID) ([]db_models.GatewayTransaction, error) {
	var txns []db_models.GatewayTransaction
	err := r.db.WithContext(ctx).
		Where("payment_record_id = ?", paymentID).
		Order("created_at DESC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) first(q *gorm.DB) (*db_models.GatewayTransaction, error) {
	var txn db_models.GatewayTransaction
	if err := q.First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}
