package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus は注文ステータス
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// Valid reports whether s is one of the five order statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Order represents a customer order. TotalAmount is fixed at creation time.
type Order struct {
	ID              string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID          string          `json:"userId" gorm:"type:varchar(36);not null;index"`
	Status          OrderStatus     `json:"status" gorm:"type:varchar(20);not null;default:'PENDING';index"`
	TotalAmount     decimal.Decimal `json:"totalAmount" gorm:"type:numeric(12,2);not null"`
	ShippingAddress string          `json:"shippingAddress" gorm:"type:text;not null"`
	PaymentMethod   string          `json:"paymentMethod" gorm:"type:varchar(100);not null"`
	Items           []OrderItem     `json:"items" gorm:"foreignKey:OrderID"`
	User            *User           `json:"user,omitempty" gorm:"foreignKey:UserID"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// OrderItem is a single product line of an order, with the unit price captured
// when the order was placed.
type OrderItem struct {
	ID        string          `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrderID   string          `json:"orderId" gorm:"type:varchar(36);not null;index"`
	ProductID string          `json:"productId" gorm:"type:varchar(36);not null;index"`
	Quantity  int             `json:"quantity" gorm:"not null"`
	Price     decimal.Decimal `json:"price" gorm:"type:numeric(12,2);not null"`
	Product   *Product        `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	CreatedAt time.Time       `json:"createdAt"`
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// OrderStatusChange is an append-only record of one status transition.
type OrderStatusChange struct {
	ID        string      `json:"id" gorm:"type:varchar(36);primaryKey"`
	OrderID   string      `json:"orderId" gorm:"type:varchar(36);not null;index"`
	From      OrderStatus `json:"from" gorm:"column:from_status;type:varchar(20);not null"`
	To        OrderStatus `json:"to" gorm:"column:to_status;type:varchar(20);not null"`
	ChangedBy string      `json:"changedBy" gorm:"type:varchar(36);not null"`
	Reason    string      `json:"reason,omitempty" gorm:"type:text"`
	ChangedAt time.Time   `json:"changedAt" gorm:"index"`
}

func (c *OrderStatusChange) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.ChangedAt.IsZero() {
		c.ChangedAt = time.Now()
	}
	return nil
}

// OrderItemRequest は注文明細の入力
type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderRequest は注文作成リクエスト。UserID が空なら操作者自身の注文
type CreateOrderRequest struct {
	UserID          string             `json:"userId"`
	Items           []OrderItemRequest `json:"items"`
	ShippingAddress string             `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
}

// UpdateOrderStatusRequest は注文ステータス更新リクエスト
type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" binding:"required"`
	Reason string      `json:"reason"`
}
