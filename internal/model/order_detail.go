package model

import (
	"time"

	"gorm.io/datatypes"
)

// OrderDetail 订单行：Snapshot 保存下单时的菜品快照（见 snapshot 包），只写一次。
type OrderDetail struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	OrderID   uint           `gorm:"not null;index" json:"order_id"`
	Snapshot  datatypes.JSON `gorm:"type:json;not null" json:"snapshot"`
}

func (OrderDetail) TableName() string { return "order_details" }
