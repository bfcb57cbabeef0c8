package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Sale is a committed sales transaction. It is never updated after commit;
// deleting it removes its items and leaves stock untouched.
type Sale struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      uint            `gorm:"not null;index"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Timestamp   time.Time       `gorm:"not null;index"`

	User  *User      `gorm:"foreignKey:UserID"`
	Items []SaleItem `gorm:"foreignKey:SaleID;constraint:OnDelete:CASCADE"`
}

// SaleItem is one line of a sale. PriceAtSale is the product price read at
// sale time and is never recomputed.
type SaleItem struct {
	ID          uint            `gorm:"primaryKey"`
	SaleID      uint            `gorm:"not null;index"`
	ProductID   uint            `gorm:"not null;index"`
	Quantity    int             `gorm:"not null"`
	PriceAtSale decimal.Decimal `gorm:"type:decimal(10,2);not null"`

	Product *Product `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
}

func (i SaleItem) Subtotal() decimal.Decimal {
	return i.PriceAtSale.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
