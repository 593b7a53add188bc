package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a domain event emitted after a committed change.
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
	EventOrderCancelled     EventType = "order.cancelled"
	EventInvoiceGenerated   EventType = "invoice.generated"
)

// DomainEvent is the payload published to the order topic.
type DomainEvent struct {
	Type       EventType       `json:"type"`
	OrderID    string          `json:"orderId"`
	UserID     string          `json:"userId"`
	Status     OrderStatus     `json:"status,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	InvoiceID  string          `json:"invoiceId,omitempty"`
	ActorID    string          `json:"actorId"`
	OccurredAt time.Time       `json:"occurredAt"`
}
