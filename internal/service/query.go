package service

import (
	"context"
	"fmt"
)

// GetOrder 按 id 返回订单视图。
func (s *OrderService) GetOrder(ctx context.Context, id uint) (OrderView, error) {
	if id == 0 {
		return OrderView{}, fmt.Errorf("order id is required: %w", ErrBadRequest)
	}
	g, err := s.orders.LoadGraph(s.db.WithContext(ctx), id)
	if err != nil {
		return OrderView{}, lookupError(id, err)
	}
	return Project(g, s.log), nil
}
