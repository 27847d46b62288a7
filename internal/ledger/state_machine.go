// Package ledger holds the gateway transaction state machine. It is pure:
// callers load and persist rows, Decide only says what should happen.
package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"passpay/internal/gateways"
	"passpay/internal/models/db_models"
)

// Observation is one piece of evidence about a debit, from a poll, a
// callback or the timeout fallback.
type Observation struct {
	Status           gateways.NormalizedStatus
	RawCode          string
	Unmapped         bool
	Reason           string
	ConfirmationCode string
	Source           db_models.ConfirmationSource
	Raw              json.RawMessage
}

func FromStatus(res *gateways.StatusResult) Observation {
	return Observation{
		Status:           res.Status,
		RawCode:          res.RawCode,
		Unmapped:         res.Unmapped,
		Reason:           res.Reason,
		ConfirmationCode: res.ConfirmationCode,
		Source:           db_models.SourcePoll,
		Raw:              res.RawResponse,
	}
}

func FromCallback(ev *gateways.CallbackEvent) Observation {
	return Observation{
		Status:           ev.Status,
		RawCode:          ev.RawCode,
		Unmapped:         ev.Unmapped,
		Reason:           ev.Reason,
		ConfirmationCode: ev.ConfirmationCode,
		Source:           db_models.SourceCallback,
		Raw:              ev.Raw,
	}
}

// TimeoutFallback is the synthetic observation used when an unreliable
// operator has left a debit pending past its grace period.
func TimeoutFallback(age time.Duration) Observation {
	return Observation{
		Status: gateways.StatusSuccessful,
		Reason: fmt.Sprintf("confirmed by timeout fallback after %s without gateway answer", age.Truncate(time.Second)),
		Source: db_models.SourceTimeoutFallback,
	}
}

type Decision struct {
	From      db_models.TransactionStatus
	To        db_models.TransactionStatus
	Changed   bool
	Duplicate bool   // the transaction was already terminal
	Note      string // diagnostics for unknown or unmapped codes
}

// Settled reports whether this decision moved the transaction into a terminal state.
func (d Decision) Settled() bool {
	return d.Changed && d.To.IsTerminal()
}

// Decide is the single transition function shared by polling and callbacks.
func Decide(current db_models.TransactionStatus, obs Observation) Decision {
	d := Decision{From: current, To: current}
	if current.IsTerminal() {
		d.Duplicate = true
		return d
	}

	switch obs.Status {
	case gateways.StatusSuccessful:
		d.To = db_models.TxnStatusSuccessful
	case gateways.StatusFailed:
		d.To = db_models.TxnStatusFailed
	case gateways.StatusPending:
		d.To = db_models.TxnStatusPending
		if obs.Unmapped {
			d.Note = fmt.Sprintf("unmapped operator status %q treated as pending", obs.RawCode)
		}
	default:
		d.To = db_models.TxnStatusPending
		d.Note = fmt.Sprintf("unknown operator status %q treated as pending", obs.RawCode)
	}
	d.Changed = d.To != current
	return d
}

// Terminate is used by administrative actions (expire, cancel).
func Terminate(current, target db_models.TransactionStatus) (Decision, error) {
	if !target.IsTerminal() {
		return Decision{}, fmt.Errorf("target %q is not terminal", target)
	}
	d := Decision{From: current, To: current}
	if current.IsTerminal() {
		d.Duplicate = true
		return d, nil
	}
	d.To = target
	d.Changed = true
	return d, nil
}

// FallbackEligible reports whether the timeout fallback may promote tx at now.
// A transaction younger than the policy's minimum wait is never eligible.
func FallbackEligible(tx *db_models.GatewayTransaction, policy gateways.FallbackPolicy, now time.Time) bool {
	if !policy.Enabled || tx.Status != db_models.TxnStatusPending {
		return false
	}
	created := time.Unix(tx.CreatedAt, 0)
	if now.Sub(created) < policy.MinimumWait {
		return false
	}
	pendingSince := created
	if tx.PendingAt != nil {
		pendingSince = time.Unix(*tx.PendingAt, 0)
	}
	return now.Sub(pendingSince) >= policy.GracePeriod
}

// PaymentStatusFor maps a terminal transaction state onto the payment ledger.
func PaymentStatusFor(status db_models.TransactionStatus) (db_models.PaymentStatus, bool) {
	switch status {
	case db_models.TxnStatusSuccessful:
		return db_models.PaymentStatusSucceeded, true
	case db_models.TxnStatusFailed, db_models.TxnStatusCancelled:
		return db_models.PaymentStatusFailed, true
	case db_models.TxnStatusTimeout:
		return db_models.PaymentStatusExpired, true
	}
	return db_models.PaymentStatusInProgress, false
}
