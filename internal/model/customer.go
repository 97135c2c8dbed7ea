package model

import "time"

// CustomerOrderInfo 下单时的顾客信息快照，写入后不再修改。
type CustomerOrderInfo struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Name       string    `gorm:"size:128;not null" json:"name"`
	Email      string    `gorm:"size:255;index" json:"email"`
	Phone      string    `gorm:"size:64" json:"phone"`
	Comment    string    `gorm:"size:1024" json:"comment"`
	CreateDate time.Time `gorm:"not null" json:"create_date"`
}

func (CustomerOrderInfo) TableName() string { return "customer_order_infos" }
