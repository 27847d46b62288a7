package response_models

type PolicyResponse struct {
	Code           string `json:"code"`
	SubscriptionID string `json:"subscription_id"`
	Status         string `json:"status"`
	Mode           string `json:"mode"`
	Year           int    `json:"year"`
	CategoryTag    string `json:"category_tag"`
	IssuedAt       string `json:"issued_at"`
	StatusNote     string `json:"status_note,omitempty"`
}

type PolicyPaymentsResponse struct {
	PolicyCode string                  `json:"policy_code"`
	Payments   []PaymentStatusResponse `json:"payments"`
}
