package gateways

import (
	"encoding/json"
	"errors"
)

var ErrMalformedCallback = errors.New("malformed_callback")

// CallbackEvent is an inbound operator notification reduced to what the
// transition function needs.
type CallbackEvent struct {
	OperatorReference string
	Reference         string // our reference, when the operator echoes it back
	Status            NormalizedStatus
	RawCode           string
	Unmapped          bool
	Reason            string
	ConfirmationCode  string
	Raw               json.RawMessage
}

// CallbackParser turns an operator-specific webhook body into a CallbackEvent.
type CallbackParser interface {
	ParseCallback(body []byte) (*CallbackEvent, error)
}
