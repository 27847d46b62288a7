package db_models

import "github.com/shopspring/decimal"

const DefaultValidityDays = 365

type Product struct {
	BaseModel
	Code         string              `gorm:"size:32;uniqueIndex;not null"`
	Name         string              `gorm:"size:128"`
	Category     string              `gorm:"size:32"`
	MinPrice     decimal.Decimal     `gorm:"type:numeric(14,2);default:100"`
	MaxPrice     decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	ValidityDays int                 `gorm:"default:365"`
	IsActive     bool                `gorm:"default:true"`
}

func (p *Product) Validity() int {
	if p.ValidityDays <= 0 {
		return DefaultValidityDays
	}
	return p.ValidityDays
}

// AcceptsAmount reports whether amount is within the product's price bounds.
func (p *Product) AcceptsAmount(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinPrice) {
		return false
	}
	if p.MaxPrice.Valid && amount.GreaterThan(p.MaxPrice.Decimal) {
		return false
	}
	return true
}
