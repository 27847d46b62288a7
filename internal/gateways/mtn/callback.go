package mtn

import (
	"encoding/json"
	"fmt"

	"passpay/internal/gateways"
)

type callbackBody struct {
	ReferenceID            string          `json:"referenceId"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	ExternalID             string          `json:"externalId"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason"`
}

// CallbackParser reads the requesttopay notification MTN posts to X-Callback-Url.
type CallbackParser struct{}

func (CallbackParser) ParseCallback(body []byte) (*gateways.CallbackEvent, error) {
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrMalformedCallback, err)
	}
	if cb.ReferenceID == "" && cb.ExternalID == "" {
		return nil, fmt.Errorf("%w: missing referenceId and externalId", gateways.ErrMalformedCallback)
	}
	status, unmapped := normalize(cb.Status)
	return &gateways.CallbackEvent{
		OperatorReference: cb.ReferenceID,
		Reference:         cb.ExternalID,
		Status:            status,
		RawCode:           cb.Status,
		Unmapped:          unmapped,
		Reason:            reasonText(cb.Reason),
		ConfirmationCode:  cb.FinancialTransactionID,
		Raw:               body,
	}, nil
}
