package gateways

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"passpay/internal/models/db_models"
)

var (
	ErrUnsupportedOperator = errors.New("unsupported_operator")
	ErrOperatorNotDetected = errors.New("operator_not_detected")
)

// ChoiceAuto asks the registry to pick the operator from the payer number.
const ChoiceAuto = "auto"

// FallbackPolicy configures optimistic promotion of long-pending debits for
// operators whose status endpoint cannot be relied on.
type FallbackPolicy struct {
	Enabled     bool
	GracePeriod time.Duration
	MinimumWait time.Duration
}

// Threshold is the minimum age before the fallback may apply.
func (p FallbackPolicy) Threshold() time.Duration {
	if p.MinimumWait > p.GracePeriod {
		return p.MinimumWait
	}
	return p.GracePeriod
}

type Provider struct {
	Operator           db_models.Operator
	DisplayName        string
	Prefixes           []string // national-number prefixes
	Instructions       string   // shown to the payer after initiation
	Adapter            Adapter
	Callbacks          CallbackParser
	Fallback           FallbackPolicy
	CallbackSecretHash string
}

// Registry is the single place that knows which operator serves which payer.
type Registry struct {
	providers map[db_models.Operator]*Provider
	order     []db_models.Operator
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[db_models.Operator]*Provider, len(providers))}
	for i := range providers {
		p := providers[i]
		if _, exists := r.providers[p.Operator]; !exists {
			r.order = append(r.order, p.Operator)
		}
		r.providers[p.Operator] = &p
	}
	return r
}

func (r *Registry) Get(operator db_models.Operator) (*Provider, error) {
	p, ok := r.providers[operator]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOperator, operator)
	}
	return p, nil
}

func (r *Registry) Adapter(operator db_models.Operator) (Adapter, error) {
	p, err := r.Get(operator)
	if err != nil {
		return nil, err
	}
	return p.Adapter, nil
}

func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.order))
	for _, op := range r.order {
		out = append(out, *r.providers[op])
	}
	return out
}

// Resolve maps an explicit operator choice, or "auto"/empty, to a supported operator.
func (r *Registry) Resolve(choice, payer string) (db_models.Operator, error) {
	choice = strings.ToLower(strings.TrimSpace(choice))
	if choice == "" || choice == ChoiceAuto {
		return r.Detect(payer)
	}
	op := db_models.Operator(choice)
	if _, ok := r.providers[op]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedOperator, choice)
	}
	return op, nil
}

// Detect picks the operator owning the payer's number prefix.
func (r *Registry) Detect(payer string) (db_models.Operator, error) {
	canonical, err := CanonicalMSISDN(payer)
	if err != nil {
		return "", err
	}
	national := NationalNumber(canonical)
	for _, op := range r.order {
		for _, prefix := range r.providers[op].Prefixes {
			if strings.HasPrefix(national, prefix) {
				return op, nil
			}
		}
	}
	return "", ErrOperatorNotDetected
}
