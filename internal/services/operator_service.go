package services

import (
	"context"

	"go.uber.org/zap"

	"passpay/internal/gateways"
	dbm "passpay/internal/models/db_models"
	"passpay/internal/models/response_models"
	"passpay/internal/observability/metrics"
)

type OperatorService interface {
	List() []response_models.OperatorResponse
	Detect(phone string) (*response_models.DetectOperatorResponse, error)
	Balance(ctx context.Context, operator string) (*response_models.BalanceResponse, error)
}

type operatorService struct {
	registry *gateways.Registry
	metrics  *metrics.ReconcileMetrics
	log      *zap.Logger
}

func NewOperatorService(registry *gateways.Registry, m *metrics.ReconcileMetrics, log *zap.Logger) OperatorService {
	return &operatorService{registry: registry, metrics: m, log: log.Named("operators")}
}

func (s *operatorService) List() []response_models.OperatorResponse {
	providers := s.registry.Providers()
	out := make([]response_models.OperatorResponse, 0, len(providers))
	for _, p := range providers {
		out = append(out, response_models.OperatorResponse{
			Code:        string(p.Operator),
			DisplayName: p.DisplayName,
			Prefixes:    p.Prefixes,
			Fallback:    p.Fallback.Enabled,
		})
	}
	return out
}

func (s *operatorService) Detect(phone string) (*response_models.DetectOperatorResponse, error) {
	canonical, err := gateways.CanonicalMSISDN(phone)
	if err != nil {
		return nil, err
	}
	op, err := s.registry.Detect(canonical)
	if err != nil {
		return nil, err
	}
	provider, err := s.registry.Get(op)
	if err != nil {
		return nil, err
	}
	return &response_models.DetectOperatorResponse{
		PhoneNumber: canonical,
		Operator:    string(op),
		DisplayName: provider.DisplayName,
	}, nil
}

func (s *operatorService) Balance(ctx context.Context, operator string) (*response_models.BalanceResponse, error) {
	adapter, err := s.registry.Adapter(dbm.Operator(operator))
	if err != nil {
		return nil, err
	}
	bal, err := adapter.QueryBalance(ctx)
	if err != nil {
		if f, ok := gateways.AsFailure(err); ok {
			s.metrics.IncGatewayFailure(f.Operator, f.Operation, f.Transient)
		}
		s.log.Warn("balance query failed", zap.String("operator", operator), zap.Error(err))
		return nil, err
	}
	return &response_models.BalanceResponse{
		Operator:  operator,
		Available: bal.Available.StringFixed(2),
		Currency:  bal.Currency,
	}, nil
}
