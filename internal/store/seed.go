package store

import (
	"fmt"
	"io"

	"restaurant_orders/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// SeedFile 种子文件格式：
//
//	postcodes: ["1010", "1020"]
//	selection_groups:
//	  - menu_item_id: 1
//	    name: Size
//	    required: true
//	    options:
//	      - {name: Small, price: "0"}
//	      - {name: Large, price: "2.50"}
type SeedFile struct {
	Postcodes       []string    `yaml:"postcodes"`
	SelectionGroups []SeedGroup `yaml:"selection_groups"`
}

type SeedGroup struct {
	MenuItemID uint         `yaml:"menu_item_id"`
	Name       string       `yaml:"name"`
	Required   bool         `yaml:"required"`
	SortOrder  int          `yaml:"sort_order"`
	Options    []SeedOption `yaml:"options"`
}

type SeedOption struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// LoadSeed 解析 YAML 种子文件。
func LoadSeed(r io.Reader) (SeedFile, error) {
	var f SeedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return SeedFile{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// ApplySeed 幂等导入邮编与可选项分组：已存在的记录按自然键跳过。
func ApplySeed(db *gorm.DB, f SeedFile) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, code := range f.Postcodes {
			if err := tx.FirstOrCreate(&model.Postcode{}, model.Postcode{Code: code}).Error; err != nil {
				return fmt.Errorf("seed postcode %s: %w", code, err)
			}
		}

		for _, g := range f.SelectionGroups {
			group := model.SelectionGroup{}
			err := tx.Where(model.SelectionGroup{MenuItemID: g.MenuItemID, Name: g.Name}).
				Attrs(model.SelectionGroup{Required: g.Required, SortOrder: g.SortOrder}).
				FirstOrCreate(&group).Error
			if err != nil {
				return fmt.Errorf("seed group %s: %w", g.Name, err)
			}
			for _, o := range g.Options {
				price := decimal.Zero
				if o.Price != "" {
					p, err := decimal.NewFromString(o.Price)
					if err != nil {
						return fmt.Errorf("seed option %s/%s: invalid price %q", g.Name, o.Name, o.Price)
					}
					price = p
				}
				opt := model.SelectionOption{}
				err := tx.Where(model.SelectionOption{GroupID: group.ID, Name: o.Name}).
					Attrs(model.SelectionOption{Price: price}).
					FirstOrCreate(&opt).Error
				if err != nil {
					return fmt.Errorf("seed option %s/%s: %w", g.Name, o.Name, err)
				}
			}
		}
		return nil
	})
}
