package model

import "github.com/shopspring/decimal"

// SelectionGroup 菜品的可选项分组（如「尺寸」「加料」）。Required 表示下单时至少选一个。
type SelectionGroup struct {
	ID         uint              `gorm:"primarykey" json:"id"`
	MenuItemID uint              `gorm:"not null;index" json:"menu_item_id"`
	Name       string            `gorm:"size:128;not null" json:"name"`
	Required   bool              `gorm:"not null;default:false" json:"required"`
	SortOrder  int               `gorm:"not null;default:0" json:"sort_order"`
	Options    []SelectionOption `gorm:"foreignKey:GroupID" json:"options"`
}

func (SelectionGroup) TableName() string { return "selection_groups" }

// SelectionOption 分组下的具体选项。
type SelectionOption struct {
	ID      uint            `gorm:"primarykey" json:"id"`
	GroupID uint            `gorm:"not null;index" json:"group_id"`
	Name    string          `gorm:"size:128;not null" json:"name"`
	Price   decimal.Decimal `gorm:"type:decimal(10,2);not null;default:0" json:"price"`
}

func (SelectionOption) TableName() string { return "selection_options" }

// All 返回需要迁移的全部模型，供 migrate / 测试共用。
func All() []any {
	return []any{
		&Postcode{},
		&CustomerOrderInfo{},
		&DeliveryAddress{},
		&Order{},
		&OrderDetail{},
		&SelectionGroup{},
		&SelectionOption{},
	}
}
