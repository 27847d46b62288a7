package response_models

type OperatorResponse struct {
	Code        string   `json:"code"`
	DisplayName string   `json:"display_name"`
	Prefixes    []string `json:"prefixes"`
	Fallback    bool     `json:"timeout_fallback"`
}

type DetectOperatorResponse struct {
	PhoneNumber string `json:"phone_number"`
	Operator    string `json:"operator"`
	DisplayName string `json:"display_name"`
}

type BalanceResponse struct {
	Operator  string `json:"operator"`
	Available string `json:"available"`
	Currency  string `json:"currency"`
}
