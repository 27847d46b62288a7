package response_models

type InitiatePaymentResponse struct {
	TransactionNumber string `json:"transaction_number"`
	Reference         string `json:"reference"`
	PendingReference  string `json:"pending_reference,omitempty"`
	Operator          string `json:"operator"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Instructions      string `json:"instructions,omitempty"`
}

type PaymentStatusResponse struct {
	TransactionNumber   string `json:"transaction_number"`
	Status              string `json:"status"`
	GatewayStatus       string `json:"gateway_status,omitempty"`
	Operator            string `json:"operator"`
	Purpose             string `json:"purpose"`
	GrossAmount         string `json:"gross_amount"`
	Fee                 string `json:"fee"`
	NetAmount           string `json:"net_amount"`
	Currency            string `json:"currency"`
	PayerNumber         string `json:"payer_number"`
	OperatorReference   string `json:"operator_reference,omitempty"`
	ConfirmationCode    string `json:"confirmation_code,omitempty"`
	ConfirmationSource  string `json:"confirmation_source,omitempty"`
	FallbackConfirmed   bool   `json:"fallback_confirmed"`
	FailureReason       string `json:"failure_reason,omitempty"`
	PolicyCode          string `json:"policy_code,omitempty"`
	NeedsReconciliation bool   `json:"needs_manual_reconciliation"`
	CreatedAt           string `json:"created_at"`
	ConfirmedAt         string `json:"confirmed_at,omitempty"`
}

type WebhookAckResponse struct {
	Result string `json:"result"` // applied, duplicate or ignored
	Status string `json:"status,omitempty"`
}

type SweepResponse struct {
	Scanned   int    `json:"scanned"`
	Polled    int    `json:"polled"`
	Settled   int    `json:"settled"`
	Fallbacks int    `json:"fallbacks"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
	Duration  string `json:"duration"`
}

type FlaggedPaymentResponse struct {
	TransactionNumber string `json:"transaction_number"`
	Operator          string `json:"operator"`
	Amount            string `json:"amount"`
	Note              string `json:"note"`
	UpdatedAt         string `json:"updated_at"`
}
