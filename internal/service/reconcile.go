package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/queue"

	"gorm.io/gorm"
)

// HandleSuccess 支付成功回调：会话已支付且订单仍为 Pending 时迁移到 Completed。
// 无论是否发生迁移都返回最新订单视图，重复回调结果一致。
func (s *PaymentService) HandleSuccess(ctx context.Context, sessionID string) (OrderView, error) {
	return s.reconcile(ctx, sessionID, model.OrderStatusCompleted)
}

// HandleCancel 取消回调：仅 Pending 订单迁移到 Cancelled，已完成的订单保持不变。
func (s *PaymentService) HandleCancel(ctx context.Context, sessionID string) (OrderView, error) {
	return s.reconcile(ctx, sessionID, model.OrderStatusCancelled)
}

func (s *PaymentService) reconcile(ctx context.Context, sessionID string, target model.OrderStatus) (OrderView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return OrderView{}, fmt.Errorf("session id is required: %w", ErrBadRequest)
	}

	// 1. 查询支付会话（不持有任何锁）
	sess, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionNotFound) {
			return OrderView{}, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		s.log.Error("payment gateway call failed",
			"action", "gateway_call_failed",
			"op", "retrieve_session",
			"session_id", sessionID,
			"error", err,
		)
		return OrderView{}, err
	}
	orderID, err := sess.OrderID()
	if err != nil {
		return OrderView{}, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}

	// 2. 同一订单的回调串行化：跨进程用 Redis 锁，库内用行锁 + 条件更新
	if s.opts.Locker != nil {
		unlock, err := s.opts.Locker.Lock(ctx, orderID)
		if err != nil {
			return OrderView{}, fmt.Errorf("lock order %d: %w", orderID, err)
		}
		defer unlock()
	}

	var (
		view    OrderView
		prev    model.OrderStatus
		changed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orders.LockOrder(tx, orderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}
		prev = order.Status

		if shouldTransition(order.Status, target, sess) {
			n, err := s.orders.UpdateStatusGuard(tx, orderID, model.OrderStatusPending, target)
			if err != nil {
				return fmt.Errorf("update order %d status: %w", orderID, err)
			}
			changed = n == 1
		}

		g, err := s.orders.LoadGraph(tx, orderID)
		if err != nil {
			return err
		}
		view = Project(g, s.log)
		return nil
	})
	if err != nil {
		return OrderView{}, asPersistence("reconcile order", err)
	}

	if !changed {
		s.log.Info("order status unchanged",
			"action", "status_unchanged",
			"order_id", orderID,
			"order_number", view.OrderNumber,
			"session_id", sessionID,
			"status", view.Status,
			"requested", target,
			"payment_status", sess.PaymentStatus,
		)
		return view, nil
	}

	s.log.Info("order status changed",
		"action", "status_transition",
		"order_id", orderID,
		"order_number", view.OrderNumber,
		"session_id", sessionID,
		"from", prev,
		"to", view.Status,
	)
	publish(ctx, s.opts.Events, s.log, queue.OrderEvent{
		Type:           queue.EventOrderStatusChanged,
		OrderID:        orderID,
		OrderNumber:    view.OrderNumber,
		Status:         view.Status,
		PreviousStatus: prev,
		Total:          view.Total,
		OccurredAt:     time.Now(),
	})
	return view, nil
}

// shouldTransition 终态不再迁移；Completed 还要求会话已支付。
func shouldTransition(current, target model.OrderStatus, sess payment.Session) bool {
	if current.Terminal() {
		return false
	}
	switch target {
	case model.OrderStatusCompleted:
		return sess.Paid()
	case model.OrderStatusCancelled:
		return true
	}
	return false
}
