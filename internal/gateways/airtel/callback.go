package airtel

import (
	"encoding/json"
	"fmt"

	"passpay/internal/gateways"
)

type callbackBody struct {
	Transaction struct {
		ID            string `json:"id"`
		Message       string `json:"message"`
		StatusCode    string `json:"status_code"`
		Status        string `json:"status"`
		AirtelMoneyID string `json:"airtel_money_id"`
	} `json:"transaction"`
}

// CallbackParser reads Airtel's payment notification.
type CallbackParser struct{}

func (CallbackParser) ParseCallback(body []byte) (*gateways.CallbackEvent, error) {
	var cb callbackBody
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", gateways.ErrMalformedCallback, err)
	}
	txn := cb.Transaction
	if txn.ID == "" {
		return nil, fmt.Errorf("%w: missing transaction id", gateways.ErrMalformedCallback)
	}
	code := txn.StatusCode
	if code == "" {
		code = txn.Status
	}
	status, unmapped := normalize(code)
	reason := ""
	if status == gateways.StatusFailed {
		reason = failureReason(txn.Message, code)
	}
	return &gateways.CallbackEvent{
		OperatorReference: txn.ID,
		Reference:         txn.ID,
		Status:            status,
		RawCode:           code,
		Unmapped:          unmapped,
		Reason:            reason,
		ConfirmationCode:  txn.AirtelMoneyID,
		Raw:               body,
	}, nil
}
