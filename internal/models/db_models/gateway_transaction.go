package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TxnStatusInitiated  TransactionStatus = "initiated"
	TxnStatusPending    TransactionStatus = "pending"
	TxnStatusSuccessful TransactionStatus = "successful"
	TxnStatusFailed     TransactionStatus = "failed"
	TxnStatusTimeout    TransactionStatus = "timeout"
	TxnStatusCancelled  TransactionStatus = "cancelled"
)

func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TxnStatusSuccessful, TxnStatusFailed, TxnStatusTimeout, TxnStatusCancelled:
		return true
	}
	return false
}

// GatewayTransaction is one attempt to move money through one operator.
type GatewayTransaction struct {
	BaseModel
	Reference         string     `gorm:"size:64;uniqueIndex;not null"`
	Operator          Operator   `gorm:"size:32;not null;uniqueIndex:idx_gtx_operator_ref,priority:1"`
	OperatorReference *string    `gorm:"size:128;uniqueIndex:idx_gtx_operator_ref,priority:2"`
	PaymentRecordID   *uuid.UUID `gorm:"type:uuid;index"`

	Amount      decimal.Decimal   `gorm:"type:numeric(14,2);not null"`
	Currency    string            `gorm:"size:3"`
	PayerNumber string            `gorm:"size:20"`
	Purpose     Purpose           `gorm:"size:32"`
	Status      TransactionStatus `gorm:"size:16;index"`

	StatusReason       string             `gorm:"size:190"`
	ConfirmationCode   string             `gorm:"size:128"`
	ConfirmationSource ConfirmationSource `gorm:"size:32"`

	// Important timestamps (unix seconds)
	PendingAt           *int64
	CompletedAt         *int64
	CallbackAt          *int64
	LastPolledAt        *int64
	FallbackConfirmedAt *int64
	LateCallbackAt      *int64
	PollCount           int

	// Raw operator payloads kept verbatim for audit. Response is the answer
	// to the debit request, Status the latest poll answer.
	RequestPayload      datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
	ResponsePayload     datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
	StatusPayload       datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
	CallbackPayload     datatypes.JSON `gorm:"type:jsonb;default:'{}'"`
	LateCallbackPayload datatypes.JSON `gorm:"type:jsonb;default:'{}'"`

	PaymentRecord *PaymentRecord `gorm:"foreignKey:PaymentRecordID"`
}

func (t *GatewayTransaction) FallbackConfirmed() bool {
	return t.ConfirmationSource == SourceTimeoutFallback
}
