package db_models

import "github.com/shopspring/decimal"

type Client struct {
	BaseModel
	Phone     string `gorm:"size:20;uniqueIndex"`
	FirstName string `gorm:"size:64"`
	LastName  string `gorm:"size:64"`

	// Aggregates recomputed from subscriptions after each activation
	ActiveSubscriptionCount int
	TotalSubscribedValue    decimal.Decimal `gorm:"type:numeric(16,2);default:0"`
	StatsUpdatedAt          *int64
}
