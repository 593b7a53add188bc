package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Invoice is issued for an order; Amount is the order total at issuance.
type Invoice struct {
	ID            string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrderID       string          `json:"orderId" gorm:"type:varchar(36);not null;uniqueIndex"`
	InvoiceNumber string          `json:"invoiceNumber" gorm:"type:varchar(64);not null;uniqueIndex"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:numeric(12,2);not null"`
	Order         *Order          `json:"order,omitempty" gorm:"foreignKey:OrderID"`
	CreatedAt     time.Time       `json:"createdAt"`
}

func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}
