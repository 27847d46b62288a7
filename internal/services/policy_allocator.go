package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	dbm "passpay/internal/models/db_models"
	"passpay/internal/repositories"
	"passpay/pkg/utils"
)

const (
	defaultAllocationAttempts = 5
	fallbackCategoryTag       = "GEN"
)

// PolicyAllocator issues sequential policy numbers of the form CG-<year>-<TAG>-NNN.
type PolicyAllocator interface {
	// Allocate must be called inside tx. It returns the subscription's
	// existing number when one was already issued.
	Allocate(ctx context.Context, tx *gorm.DB, sub *dbm.Subscription, mode dbm.AllocationMode, at time.Time) (*dbm.PolicyNumber, error)
}

type policyAllocator struct {
	policies    repositories.PolicyRepository
	maxAttempts int
	log         *zap.Logger
}

func NewPolicyAllocator(policies repositories.PolicyRepository, log *zap.Logger) PolicyAllocator {
	return &policyAllocator{
		policies:    policies,
		maxAttempts: defaultAllocationAttempts,
		log:         log.Named("policy.allocator"),
	}
}

// CategoryTag is the first three letters of the product code, uppercased.
func CategoryTag(productCode string) string {
	var b strings.Builder
	for _, r := range productCode {
		if b.Len() == 3 {
			break
		}
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	if b.Len() < 3 {
		return fallbackCategoryTag
	}
	return b.String()
}

func PolicyBucket(year int, tag string) string {
	return fmt.Sprintf("%s-%d-%s", dbm.CountryTag, year, tag)
}

func FormatPolicyCode(bucket string, sequence int) string {
	return fmt.Sprintf("%s-%03d", bucket, sequence)
}

func (a *policyAllocator) Allocate(ctx context.Context, tx *gorm.DB, sub *dbm.Subscription, mode dbm.AllocationMode, at time.Time) (*dbm.PolicyNumber, error) {
	repo := a.policies.WithTx(tx)

	existing, err := repo.FindBySubscription(ctx, sub.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if existing != nil {
		return existing, nil
	}

	local := utils.LocalTime(at)
	tag := CategoryTag(sub.Product.Code)
	bucket := PolicyBucket(local.Year(), tag)

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		highest, err := repo.MaxSequence(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		policy := &dbm.PolicyNumber{
			Code:           FormatPolicyCode(bucket, highest+1),
			SubscriptionID: sub.ID,
			ClientID:       sub.ClientID,
			Bucket:         bucket,
			Sequence:       highest + 1,
			Year:           local.Year(),
			CategoryTag:    tag,
			Status:         dbm.PolicyStatusIssued,
			Mode:           mode,
			IssuedAt:       at.Unix(),
		}
		err = repo.Insert(ctx, policy)
		if err == nil {
			a.log.Info("policy number issued",
				zap.String("code", policy.Code),
				zap.String("subscription_id", sub.ID.String()),
				zap.Int("attempt", attempt))
			return policy, nil
		}
		if !repositories.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		lastErr = err

		// The collision may be on subscription_id: someone else finished first.
		if existing, ferr := repo.FindBySubscription(ctx, sub.ID); ferr == nil && existing != nil {
			return existing, nil
		}
		a.log.Warn("policy sequence collision, retrying",
			zap.String("bucket", bucket),
			zap.Int("sequence", highest+1),
			zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("%w: bucket %s after %d attempts: %v", utils.ErrPolicyAllocation, bucket, a.maxAttempts, lastErr)
}
