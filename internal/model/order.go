package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态：Pending 为初始态，Completed / Cancelled 为终态。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusCompleted OrderStatus = "Completed"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Valid 判断是否为已知状态。
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal 终态不允许再迁移。
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// OrderMethod 取餐方式
type OrderMethod string

const (
	OrderMethodDelivery OrderMethod = "delivery"
	OrderMethodPickup   OrderMethod = "pickup"
)

func (m OrderMethod) Valid() bool {
	return m == OrderMethodDelivery || m == OrderMethodPickup
}

// Order 订单主表。创建后只允许对账流程修改 status / updated_at。
type Order struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OrderNumber   string          `gorm:"size:64;uniqueIndex;not null" json:"order_number"`
	Status        OrderStatus     `gorm:"size:16;not null;default:'Pending';index" json:"status"`
	Total         decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"total"`
	PaymentMethod string          `gorm:"size:32;not null" json:"payment_method"`
	OrderMethod   OrderMethod     `gorm:"size:16;not null" json:"order_method"`
	SpecialNotes  string          `gorm:"size:1024" json:"special_notes"`

	CustomerOrderInfoID *uint `gorm:"index" json:"customer_order_info_id"`
	DeliveryAddressID   *uint `gorm:"index" json:"delivery_address_id"`
}

func (Order) TableName() string { return "orders" }
