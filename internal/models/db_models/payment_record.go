package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusInProgress PaymentStatus = "in_progress"
	PaymentStatusSucceeded  PaymentStatus = "succeeded"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
	PaymentStatusExpired    PaymentStatus = "expired"
)

func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusInProgress
}

// PaymentRecord is the operator-agnostic ledger entry for one payment.
type PaymentRecord struct {
	BaseModel
	TransactionNumber string    `gorm:"size:40;uniqueIndex;not null"`
	SubscriptionID    uuid.UUID `gorm:"type:uuid;index"`
	ClientID          uuid.UUID `gorm:"type:uuid;index"`

	GrossAmount decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Fee         decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0"`
	NetAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null"`
	Currency    string          `gorm:"size:3"`

	Operator    Operator      `gorm:"size:32"`
	PayerNumber string        `gorm:"size:20"`
	Purpose     Purpose       `gorm:"size:32"`
	Status      PaymentStatus `gorm:"size:16;index"`

	FailureReason     string `gorm:"size:190"`
	OperatorReference string `gorm:"size:128"`
	ConfirmationCode  string `gorm:"size:128"`

	ConfirmedAt *int64
	SettledAt   *int64

	NeedsManualReconciliation bool   `gorm:"index"`
	ReconciliationNote        string `gorm:"size:255"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionID"`
}

// BeforeSave keeps the net amount derived from gross and fee on every write.
func (p *PaymentRecord) BeforeSave(tx *gorm.DB) error {
	p.NetAmount = p.GrossAmount.Sub(p.Fee)
	return nil
}
