package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NormalizedStatus is the operator-independent outcome of a debit.
type NormalizedStatus string

const (
	StatusSuccessful NormalizedStatus = "successful"
	StatusFailed     NormalizedStatus = "failed"
	StatusPending    NormalizedStatus = "pending"
	StatusUnknown    NormalizedStatus = "unknown"
)

// Adapter is the capability contract every mobile-money operator implements.
// Adapters never persist anything; callers own the ledger.
type Adapter interface {
	AcquireAccessToken(ctx context.Context) (Token, error)
	InitiateDebit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	QueryStatus(ctx context.Context, reference string) (*StatusResult, error)
	QueryBalance(ctx context.Context) (*Balance, error)
}

type Token struct {
	Value     string
	ExpiresAt time.Time
}

type DebitRequest struct {
	Amount      decimal.Decimal
	Currency    string
	PayerNumber string // canonical +242 format
	Reference   string // our gateway reference, reused on retries
	Description string
}

type DebitResult struct {
	PendingReference string
	RawRequest       json.RawMessage
	RawResponse      json.RawMessage
}

type StatusResult struct {
	Status           NormalizedStatus
	RawCode          string
	Unmapped         bool // RawCode was not in the operator mapping
	Reason           string
	ConfirmationCode string
	RawResponse      json.RawMessage
}

type Balance struct {
	Available   decimal.Decimal
	Currency    string
	RawResponse json.RawMessage
}

// Failure is returned for every unsuccessful gateway call: network errors,
// timeouts, 5xx, malformed bodies and business rejections alike.
type Failure struct {
	Operator   string
	Operation  string
	Reason     string
	StatusCode int
	Transient  bool
	Raw        json.RawMessage
	Err        error

	// Sent reports that at least one attempt left this process, so the
	// operator may have acted on it.
	Sent bool
	// PendingReference is the reference a Sent debit can be traced under.
	PendingReference string
}

func (f *Failure) Error() string {
	if f.StatusCode > 0 {
		return fmt.Sprintf("%s %s failed (http %d): %s", f.Operator, f.Operation, f.StatusCode, f.Reason)
	}
	return fmt.Sprintf("%s %s failed: %s", f.Operator, f.Operation, f.Reason)
}

func (f *Failure) Unwrap() error { return f.Err }

func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// Unconfirmed tags a failed debit request that may still have been accepted
// by the operator under reference. Requests that never went out are left as is.
func Unconfirmed(err error, reference string) error {
	if f, ok := AsFailure(err); ok && f.Sent {
		f.PendingReference = reference
	}
	return err
}

// IsTransient reports whether err is a gateway failure worth retrying later.
func IsTransient(err error) bool {
	f, ok := AsFailure(err)
	return ok && f.Transient
}
