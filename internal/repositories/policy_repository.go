package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"passpay/internal/models/db_models"
)

type PolicyRepository interface {
	WithTx(tx *gorm.DB) PolicyRepository
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*db_models.PolicyNumber, error)
	FindByCode(ctx context.Context, code string) (*db_models.PolicyNumber, error)
	MaxSequence(ctx context.Context, bucket string) (int, error)
	Insert(ctx context.Context, policy *db_models.PolicyNumber) error
	Save(ctx context.Context, policy *db_models.PolicyNumber) error
	ListByBucket(ctx context.Context, bucket string) ([]db_models.PolicyNumber, error)
}

type policyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) PolicyRepository {
	return &policyRepository{db: db}
}

func (r *policyRepository) WithTx(tx *gorm.DB) PolicyRepository {
	return &policyRepository{db: tx}
}

func (r *policyRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) (*db_models.PolicyNumber, error) {
	return r.first(r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID))
}

func (r *policyRepository) FindByCode(ctx context.Context, code string) (*db_models.PolicyNumber, error) {
	return r.first(r.db.WithContext(ctx).Where("code = ?", code))
}

// MaxSequence returns the highest sequence in bucket, or 0 when empty.
func (r *policyRepository) MaxSequence(ctx context.Context, bucket string) (int, error) {
	var max int
	row := r.db.WithContext(ctx).
		Model(&db_models.PolicyNumber{}).
		Select("COALESCE(MAX(sequence), 0)").
		Where("bucket = ?", bucket).
		Row()
	if err := row.Scan(&max); err != nil {
		return 0, err
	}
	return max, nil
}

// Insert runs inside its own savepoint so a unique violation leaves the
// surrounding transaction usable for a retry.
func (r *policyRepository) Insert(ctx context.Context, policy *db_models.PolicyNumber) error {
	return r.db.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(policy).Error
	})
}

func (r *policyRepository) Save(ctx context.Context, policy *db_models.PolicyNumber) error {
	return r.db.WithContext(ctx).Save(policy).Error
}

func (r *policyRepository) ListByBucket(ctx context.Context, bucket string) ([]db_models.PolicyNumber, error) {
	var policies []db_models.PolicyNumber
	err := r.db.WithContext(ctx).
		Where("bucket = ?", bucket).
		Order("sequence ASC").
		Find(&policies).Error
	if err != nil {
		return nil, err
	}
	return policies, nil
}

func (r *policyRepository) first(q *gorm.DB) (*db_models.PolicyNumber, error) {
	var policy db_models.PolicyNumber
	if err := q.First(&policy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &policy, nil
}

// IsUniqueViolation recognises duplicate-key errors from postgres and sqlite,
// translated or not.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return containsAny(msg, "duplicate key value", "UNIQUE constraint failed", "SQLSTATE 23505")
}
