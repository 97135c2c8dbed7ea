package queue

import (
	"fmt"
	"time"

	"restaurant_orders/internal/model"

	"github.com/shopspring/decimal"
)

// EventType 订单事件类型
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
)

// OrderEvent 是写入 Kafka 的订单生命周期事件。
type OrderEvent struct {
	Type           EventType         `json:"type"`
	OrderID        uint              `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	Status         model.OrderStatus `json:"status"`
	PreviousStatus model.OrderStatus `json:"previousStatus,omitempty"`
	Total          decimal.Decimal   `json:"total"`
	OccurredAt     time.Time         `json:"occurredAt"`
}

// Validate 做最小字段校验，防止下游处理脏消息。
func (e OrderEvent) Validate() error {
	switch e.Type {
	case EventOrderCreated, EventOrderStatusChanged:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.OrderID == 0 {
		return fmt.Errorf("orderId is required")
	}
	if e.OrderNumber == "" {
		return fmt.Errorf("orderNumber is required")
	}
	if !e.Status.Valid() {
		return fmt.Errorf("status %q is invalid", e.Status)
	}
	if e.Type == EventOrderStatusChanged && !e.PreviousStatus.Valid() {
		return fmt.Errorf("previousStatus is required for %s", e.Type)
	}
	return nil
}
