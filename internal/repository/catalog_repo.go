package repository

import (
	"context"

	"restaurant_orders/internal/model"

	"gorm.io/gorm"
)

// CatalogRepository 只读访问菜品可选项分组。
type CatalogRepository struct {
	DB *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{DB: db}
}

// SelectionGroups 按菜品 id 分组返回其可选项分组（含选项），未配置分组的菜品不出现在结果里。
func (r *CatalogRepository) SelectionGroups(ctx context.Context, menuItemIDs []uint) (map[uint][]model.SelectionGroup, error) {
	out := make(map[uint][]model.SelectionGroup)
	if len(menuItemIDs) == 0 {
		return out, nil
	}
	var groups []model.SelectionGroup
	err := r.DB.WithContext(ctx).
		Preload("Options").
		Where("menu_item_id IN ?", menuItemIDs).
		Order("menu_item_id ASC, sort_order ASC, id ASC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		out[g.MenuItemID] = append(out[g.MenuItemID], g)
	}
	return out, nil
}
