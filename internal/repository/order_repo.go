// Package repository 封装订单相关表的读写。写操作一律接收调用方传入的 tx，
// 由 service 层决定事务边界。
package repository

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_orders/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderGraph 组装订单视图所需的全部行。
type OrderGraph struct {
	Order    model.Order
	Details  []model.OrderDetail
	Customer *model.CustomerOrderInfo
	Address  *model.DeliveryAddress
	Postcode *model.Postcode
}

type OrderRepository struct{}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{}
}

// FindPostcodeID 邮编不存在时返回 gorm.ErrRecordNotFound。
func (r *OrderRepository) FindPostcodeID(tx *gorm.DB, code string) (uint, error) {
	var pc model.Postcode
	err := tx.Select("id").Where("code = ?", strings.TrimSpace(code)).First(&pc).Error
	if err != nil {
		return 0, err
	}
	return pc.ID, nil
}

func (r *OrderRepository) CreateCustomer(tx *gorm.DB, c *model.CustomerOrderInfo) error {
	return tx.Create(c).Error
}

func (r *OrderRepository) CreateAddress(tx *gorm.DB, a *model.DeliveryAddress) error {
	if a.PostcodeID == 0 {
		return errors.New("delivery address without postcode")
	}
	return tx.Create(a).Error
}

func (r *OrderRepository) CreateOrder(tx *gorm.DB, o *model.Order) error {
	return tx.Create(o).Error
}

// CreateDetails 批量写订单行。
func (r *OrderRepository) CreateDetails(tx *gorm.DB, details []model.OrderDetail) error {
	if len(details) == 0 {
		return nil
	}
	return tx.Create(&details).Error
}

func (r *OrderRepository) GetOrder(tx *gorm.DB, id uint) (*model.Order, error) {
	var o model.Order
	if err := tx.First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// LockOrder 读取并锁住订单行（SELECT ... FOR UPDATE）。
// SQLite 不支持行锁，整库写锁 + 下面的条件更新已足够串行化。
func (r *OrderRepository) LockOrder(tx *gorm.DB, id uint) (*model.Order, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var o model.Order
	if err := q.First(&o, id).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStatusGuard 仅当订单仍处于 from 状态时才更新，返回受影响行数。
// 0 表示已被其他请求迁移，调用方应视为无操作。
func (r *OrderRepository) UpdateStatusGuard(tx *gorm.DB, id uint, from, to model.OrderStatus) (int64, error) {
	res := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	return res.RowsAffected, res.Error
}

// LoadGraph 读取订单及其明细、顾客、地址、邮编。
func (r *OrderRepository) LoadGraph(tx *gorm.DB, id uint) (OrderGraph, error) {
	var g OrderGraph
	if err := tx.First(&g.Order, id).Error; err != nil {
		return OrderGraph{}, err
	}
	if err := tx.Where("order_id = ?", id).Order("id ASC").Find(&g.Details).Error; err != nil {
		return OrderGraph{}, fmt.Errorf("load order %d details: %w", id, err)
	}

	if g.Order.CustomerOrderInfoID != nil {
		var c model.CustomerOrderInfo
		if err := tx.First(&c, *g.Order.CustomerOrderInfoID).Error; err != nil {
			return OrderGraph{}, fmt.Errorf("load order %d customer: %w", id, err)
		}
		g.Customer = &c
	}
	if g.Order.DeliveryAddressID != nil {
		var a model.DeliveryAddress
		if err := tx.First(&a, *g.Order.DeliveryAddressID).Error; err != nil {
			return OrderGraph{}, fmt.Errorf("load order %d address: %w", id, err)
		}
		g.Address = &a

		var pc model.Postcode
		err := tx.First(&pc, a.PostcodeID).Error
		switch {
		case err == nil:
			g.Postcode = &pc
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return OrderGraph{}, fmt.Errorf("load order %d postcode: %w", id, err)
		}
	}
	return g, nil
}
