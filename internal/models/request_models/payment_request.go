package request_models

// InitiatePaymentRequest identifies the subscription either by policy code
// or by subscription id.
type InitiatePaymentRequest struct {
	PolicyCode     string `json:"policy_code"`
	SubscriptionID string `json:"subscription_id" binding:"omitempty,uuid"`
	Amount         string `json:"amount" binding:"required"`
	PayerNumber    string `json:"payer_number" binding:"required"`
	Operator       string `json:"operator"` // mtn_money, airtel_money or auto
	Purpose        string `json:"purpose" binding:"omitempty,oneof=initial_subscription contribution renewal catch_up"`
}

type DetectOperatorRequest struct {
	PhoneNumber string `json:"phone_number" binding:"required"`
}

type UpdatePolicyStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=issued suspended cancelled"`
	Note   string `json:"note" binding:"max=255"`
}
