package utils

import "errors"

var (
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrAmountOutOfRange        = errors.New("amount outside product price bounds")
	ErrSubscriptionNotFound    = errors.New("subscription not found")
	ErrSubscriptionNotPayable  = errors.New("subscription does not accept this payment")
	ErrPaymentNotFound         = errors.New("payment not found")
	ErrPaymentInProgress       = errors.New("a debit is already in flight for this payment")
	ErrPaymentInitiationFailed = errors.New("payment initiation failed")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrPolicyNotFound          = errors.New("policy not found")
	ErrInvalidPolicyTransition = errors.New("invalid policy status change")
	ErrPolicyAllocation        = errors.New("policy number allocation failed")
	ErrNotFlagged              = errors.New("payment is not awaiting manual reconciliation")
	ErrInvalidCallbackSecret   = errors.New("invalid callback secret")
	ErrDatabaseError           = errors.New("database error")
)
