package db_models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubStatusPending   SubscriptionStatus = "pending"
	SubStatusActivated SubscriptionStatus = "activated"
	SubStatusSuspended SubscriptionStatus = "suspended"
	SubStatusExpired   SubscriptionStatus = "expired"
	SubStatusCancelled SubscriptionStatus = "cancelled"
)

type Subscription struct {
	BaseModel
	Number    string    `gorm:"size:40;uniqueIndex"`
	ClientID  uuid.UUID `gorm:"type:uuid;index"`
	ProductID uuid.UUID `gorm:"type:uuid;index"`

	Amount decimal.Decimal    `gorm:"type:numeric(14,2);not null"`
	Status SubscriptionStatus `gorm:"size:16;index"`

	ActivatedAt            *int64
	ExpiresAt              *int64
	InitialPaymentReceived bool

	Product Product `gorm:"foreignKey:ProductID"`
	Client  Client  `gorm:"foreignKey:ClientID"`
}
