package db_models

type Operator string

const (
	OperatorMTN    Operator = "mtn_money"
	OperatorAirtel Operator = "airtel_money"
)

type Purpose string

const (
	PurposeInitialSubscription Purpose = "initial_subscription"
	PurposeContribution        Purpose = "contribution"
	PurposeRenewal             Purpose = "renewal"
	PurposeCatchUp             Purpose = "catch_up"
)

func (p Purpose) Valid() bool {
	switch p {
	case PurposeInitialSubscription, PurposeContribution, PurposeRenewal, PurposeCatchUp:
		return true
	}
	return false
}

// ConfirmationSource records which path settled a transaction.
type ConfirmationSource string

const (
	SourcePoll            ConfirmationSource = "gateway_poll"
	SourceCallback        ConfirmationSource = "callback"
	SourceTimeoutFallback ConfirmationSource = "timeout_fallback"
	SourceAdmin           ConfirmationSource = "admin"
	SourceInitiation      ConfirmationSource = "initiation"
)

const (
	DefaultCurrency = "XAF"
	CountryTag      = "CG"

	// ReasonMaxLength bounds stored operator reason text.
	ReasonMaxLength = 190
)

func TruncateReason(reason string) string {
	r := []rune(reason)
	if len(r) <= ReasonMaxLength {
		return reason
	}
	return string(r[:ReasonMaxLength])
}
