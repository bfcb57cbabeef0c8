package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a sellable catalog entry. Stock is only mutated by sale creation
// and explicit stock adjustment.
type Product struct {
	ID          uint            `gorm:"primaryKey"`
	Name        string          `gorm:"size:200;index;not null"`
	Description string          `gorm:"type:text"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Stock       int             `gorm:"not null;default:0;check:chk_products_stock_non_negative,stock >= 0"`
	CategoryID  uint            `gorm:"not null;index"`
	CreatedAt   time.Time

	Category *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:RESTRICT"`
}
