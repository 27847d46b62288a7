package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"passpay/internal/models/db_models"
)

// SubscriptionRepository is the slice of the subscription/product/client
// store the payment engine needs.
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository
	FindByID(ctx context.Context, id uuid.UUID) (*db_models.Subscription, error)
	LockByID(ctx context.Context, id uuid.UUID) (*db_models.Subscription, error)
	Save(ctx context.Context, sub *db_models.Subscription) error
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]db_models.Subscription, error)
	ListActivatedWithoutPolicy(ctx context.Context, limit int) ([]db_models.Subscription, error)
	FindClient(ctx context.Context, id uuid.UUID) (*db_models.Client, error)
	SaveClientStats(ctx context.Context, client *db_models.Client) error
}

type subscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	return &subscriptionRepository{db: tx}
}

func (r *subscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*db_models.Subscription, error) {
	return r.first(r.db.WithContext(ctx).Preload("Product").Where("id = ?", id))
}

func (r *subscriptionRepository) LockByID(ctx context.Context, id uuid.UUID) (*db_models.Subscription, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Product").
		Where("id = ?", id))
}

func (r *subscriptionRepository) Save(ctx context.Context, sub *db_models.Subscription) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(sub).Error
}

func (r *subscriptionRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]db_models.Subscription, error) {
	var subs []db_models.Subscription
	if err := r.db.WithContext(ctx).Where("client_id = ?", clientID).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) ListActivatedWithoutPolicy(ctx context.Context, limit int) ([]db_models.Subscription, error) {
	var subs []db_models.Subscription
	q := r.db.WithContext(ctx).
		Preload("Product").
		Where("status = ?", db_models.SubStatusActivated).
		Where("NOT EXISTS (SELECT 1 FROM policy_numbers p WHERE p.subscription_id = subscriptions.id)").
		Order("activated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriptionRepository) FindClient(ctx context.Context, id uuid.UUID) (*db_models.Client, error) {
	var client db_models.Client
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &client, nil
}

func (r *subscriptionRepository) SaveClientStats(ctx context.Context, client *db_models.Client) error {
	return r.db.WithContext(ctx).
		Model(client).
		Select("active_subscription_count", "total_subscribed_value", "stats_updated_at", "updated_at").
		Updates(client).Error
}

func (r *subscriptionRepository) first(q *gorm.DB) (*db_models.Subscription, error) {
	var sub db_models.Subscription
	if err := q.First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
