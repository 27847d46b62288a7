package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"passpay/internal/models/db_models"
)

type PaymentRepository interface {
	WithTx(tx *gorm.DB) PaymentRepository
	Create(ctx context.Context, payment *db_models.PaymentRecord) error
	Save(ctx context.Context, payment *db_models.PaymentRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error)
	FindByTransactionNumber(ctx context.Context, number string) (*db_models.PaymentRecord, error)
	LockByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error)
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]db_models.PaymentRecord, error)
	ListNeedingReconciliation(ctx context.Context, limit int) ([]db_models.PaymentRecord, error)
}

type paymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) WithTx(tx *gorm.DB) PaymentRepository {
	return &paymentRepository{db: tx}
}

func (r *paymentRepository) Create(ctx context.Context, payment *db_models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// Save writes every column so the BeforeSave hook's net amount is persisted.
func (r *paymentRepository) Save(ctx context.Context, payment *db_models.PaymentRecord) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(payment).Error
}

func (r *paymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

func (r *paymentRepository) FindByTransactionNumber(ctx context.Context, number string) (*db_models.PaymentRecord, error) {
	return r.first(r.db.WithContext(ctx).Where("transaction_number = ?", number))
}

func (r *paymentRepository) LockByID(ctx context.Context, id uuid.UUID) (*db_models.PaymentRecord, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id))
}

func (r *paymentRepository) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]db_models.PaymentRecord, error) {
	var payments []db_models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) ListNeedingReconciliation(ctx context.Context, limit int) ([]db_models.PaymentRecord, error) {
	var payments []db_models.PaymentRecord
	q := r.db.WithContext(ctx).
		Where("needs_manual_reconciliation = ?", true).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (r *paymentRepository) first(q *gorm.DB) (*db_models.PaymentRecord, error) {
	var payment db_models.PaymentRecord
	if err := q.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}
