package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"passpay/internal/clock"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/response_models"
	"passpay/internal/repositories"
	"passpay/pkg/utils"
)

type PolicyService interface {
	GetBySubscription(ctx context.Context, subscriptionID string) (*response_models.PolicyResponse, error)
	GetByCode(ctx context.Context, code string) (*response_models.PolicyResponse, error)
	UpdateStatus(ctx context.Context, code string, status dbm.PolicyStatus, note string) (*response_models.PolicyResponse, error)
}

type policyService struct {
	db       *gorm.DB
	policies repositories.PolicyRepository
	clock    clock.Clock
	log      *zap.Logger
}

func NewPolicyService(db *gorm.DB, policies repositories.PolicyRepository, clk clock.Clock, log *zap.Logger) PolicyService {
	return &policyService{db: db, policies: policies, clock: clk, log: log.Named("policy")}
}

// allowedPolicyMoves lists the administrative status changes. Cancelled is final.
var allowedPolicyMoves = map[dbm.PolicyStatus][]dbm.PolicyStatus{
	dbm.PolicyStatusIssued:    {dbm.PolicyStatusSuspended, dbm.PolicyStatusCancelled},
	dbm.PolicyStatusSuspended: {dbm.PolicyStatusIssued, dbm.PolicyStatusCancelled},
}

func canMovePolicy(from, to dbm.PolicyStatus) bool {
	for _, s := range allowedPolicyMoves[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (s *policyService) GetBySubscription(ctx context.Context, subscriptionID string) (*response_models.PolicyResponse, error) {
	id, err := uuid.Parse(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("%w: subscription id", utils.ErrInvalidRequest)
	}
	policy, err := s.policies.FindBySubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if policy == nil {
		return nil, utils.ErrPolicyNotFound
	}
	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *policyService) GetByCode(ctx context.Context, code string) (*response_models.PolicyResponse, error) {
	policy, err := s.policies.FindByCode(ctx, strings.ToUpper(code))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
	}
	if policy == nil {
		return nil, utils.ErrPolicyNotFound
	}
	resp := toPolicyResponse(policy)
	return &resp, nil
}

func (s *policyService) UpdateStatus(ctx context.Context, code string, status dbm.PolicyStatus, note string) (*response_models.PolicyResponse, error) {
	var updated *dbm.PolicyNumber
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.policies.WithTx(tx)
		policy, err := repo.FindByCode(ctx, strings.ToUpper(code))
		if err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		if policy == nil {
			return utils.ErrPolicyNotFound
		}
		if !canMovePolicy(policy.Status, status) {
			return fmt.Errorf("%w: %s -> %s", utils.ErrInvalidPolicyTransition, policy.Status, status)
		}
		policy.Status = status
		policy.StatusChangedAt = utils.UnixPtr(s.clock.Now())
		policy.StatusNote = truncateNote(note)
		if err := repo.Save(ctx, policy); err != nil {
			return fmt.Errorf("%w: %v", utils.ErrDatabaseError, err)
		}
		updated = policy
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("policy status changed", zap.String("code", updated.Code), zap.String("status", string(status)))
	resp := toPolicyResponse(updated)
	return &resp, nil
}

func toPolicyResponse(p *dbm.PolicyNumber) response_models.PolicyResponse {
	return response_models.PolicyResponse{
		Code:           p.Code,
		SubscriptionID: p.SubscriptionID.String(),
		Status:         string(p.Status),
		Mode:           string(p.Mode),
		Year:           p.Year,
		CategoryTag:    p.CategoryTag,
		IssuedAt:       utils.FormatRFC3339(utils.FromUnixSeconds(p.IssuedAt)),
		StatusNote:     p.StatusNote,
	}
}
