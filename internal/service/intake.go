// Package service 实现下单、对账与订单视图组装。
//
// 每个写操作都在一个 gorm 事务里完成，事务句柄显式传给 repository；
// 事件在提交之后发布，发布失败只记日志，不回滚订单。
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/queue"
	"restaurant_orders/internal/repository"
	"restaurant_orders/internal/snapshot"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Catalog 菜品可选项分组查询。
type Catalog interface {
	SelectionGroups(ctx context.Context, menuItemIDs []uint) (map[uint][]model.SelectionGroup, error)
}

// EventPublisher 订单事件出口，nil 表示不发布。
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// ItemInput 下单请求中的一行。
type ItemInput struct {
	ID                uint               `json:"id"`
	Name              string             `json:"name"`
	Quantity          int                `json:"quantity"`
	Price             decimal.Decimal    `json:"price"`
	OriginalPrice     decimal.Decimal    `json:"originalPrice"`
	Notes             string             `json:"notes"`
	SelectedOptionIDs []uint             `json:"selectedOptionIds"`
	SelectedSubItems  []snapshot.SubItem `json:"selectedSubItems"`
	GroupOrder        []string           `json:"groupOrder"`
	Image             string             `json:"image"`
}

// CustomerInput 顾客信息；地址字段仅外送订单需要。
type CustomerInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Comment  string `json:"comment"`
	Postcode string `json:"postcode"`
	Street   string `json:"street"`
	House    string `json:"house"`
	Stairs   string `json:"stairs"`
	Buzzer   string `json:"buzzer"`
	Door     string `json:"door"`
	Bell     string `json:"bell"`
}

type CreateOrderInput struct {
	Items         []ItemInput       `json:"items"`
	CustomerInfo  CustomerInput     `json:"customerInfo"`
	OrderMethod   model.OrderMethod `json:"orderMethod"`
	PaymentMethod string            `json:"paymentMethod"`
	Status        model.OrderStatus `json:"status"`
	Total         decimal.Decimal   `json:"total"`
	SpecialNotes  string            `json:"specialNotes"`
}

// Created 下单结果
type Created struct {
	OrderID     uint   `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

// 未指定支付方式时的默认值
const (
	defaultOnlinePayment = "card"
	defaultCashPayment   = "cash"
)

type OrderService struct {
	db      *gorm.DB
	orders  *repository.OrderRepository
	catalog Catalog
	events  EventPublisher
	log     *slog.Logger

	now         func() time.Time
	orderNumber func(time.Time) string
}

func NewOrderService(db *gorm.DB, orders *repository.OrderRepository, catalog Catalog, events EventPublisher, log *slog.Logger) *OrderService {
	return &OrderService{
		db:          db,
		orders:      orders,
		catalog:     catalog,
		events:      events,
		log:         log,
		now:         time.Now,
		orderNumber: newOrderNumber,
	}
}

// CreateOrder 在线支付路径：落库后返回订单 id 与订单号，支付由 checkout 接口发起。
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (Created, error) {
	if strings.TrimSpace(in.PaymentMethod) == "" {
		in.PaymentMethod = defaultOnlinePayment
	}
	created, _, err := s.create(ctx, in, false)
	return created, err
}

// CreateCashOrder 现金支付路径：同一事务内落库并组装完整订单视图。
func (s *OrderService) CreateCashOrder(ctx context.Context, in CreateOrderInput) (OrderView, error) {
	if strings.TrimSpace(in.PaymentMethod) == "" {
		in.PaymentMethod = defaultCashPayment
	}
	_, view, err := s.create(ctx, in, true)
	return view, err
}

func (s *OrderService) create(ctx context.Context, in CreateOrderInput, project bool) (Created, OrderView, error) {
	if in.Status == "" {
		in.Status = model.OrderStatusPending
	}

	groups, err := s.catalog.SelectionGroups(ctx, itemIDs(in.Items))
	if err != nil {
		return Created{}, OrderView{}, asPersistence("load selection groups", err)
	}
	if err := validateOrder(in, groups); err != nil {
		return Created{}, OrderView{}, err
	}

	now := s.now()
	var (
		order model.Order
		view  OrderView
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ci := in.CustomerInfo
		delivery := in.OrderMethod == model.OrderMethodDelivery

		// 1. 外送订单先解析邮编，未知邮编直接失败，不产生任何写入
		var postcodeID uint
		if delivery {
			id, err := s.orders.FindPostcodeID(tx, ci.Postcode)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("postcode %q: %w", ci.Postcode, ErrNotFound)
				}
				return err
			}
			postcodeID = id
		}

		// 2. 顾客信息
		customer := model.CustomerOrderInfo{
			Name:       strings.TrimSpace(ci.Name),
			Email:      strings.TrimSpace(ci.Email),
			Phone:      strings.TrimSpace(ci.Phone),
			Comment:    ci.Comment,
			CreateDate: now,
		}
		if err := s.orders.CreateCustomer(tx, &customer); err != nil {
			return fmt.Errorf("create customer: %w", err)
		}

		// 3. 外送地址
		var addressID *uint
		if delivery {
			addr := model.DeliveryAddress{
				PostcodeID: postcodeID,
				Street:     strings.TrimSpace(ci.Street),
				House:      strings.TrimSpace(ci.House),
				Stairs:     ci.Stairs,
				Buzzer:     ci.Buzzer,
				Door:       ci.Door,
				Bell:       ci.Bell,
			}
			if err := s.orders.CreateAddress(tx, &addr); err != nil {
				return fmt.Errorf("create address: %w", err)
			}
			addressID = &addr.ID
		}

		// 4. 订单主表
		order = model.Order{
			OrderNumber:         s.orderNumber(now),
			Status:              in.Status,
			Total:               in.Total,
			PaymentMethod:       strings.TrimSpace(in.PaymentMethod),
			OrderMethod:         in.OrderMethod,
			SpecialNotes:        in.SpecialNotes,
			CustomerOrderInfoID: &customer.ID,
			DeliveryAddressID:   addressID,
		}
		if err := s.orders.CreateOrder(tx, &order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		// 5. 每行一条快照
		details := make([]model.OrderDetail, 0, len(in.Items))
		for _, it := range in.Items {
			blob, err := snapshot.Encode(toSnapshot(it))
			if err != nil {
				return err
			}
			details = append(details, model.OrderDetail{OrderID: order.ID, Snapshot: blob})
		}
		if err := s.orders.CreateDetails(tx, details); err != nil {
			return fmt.Errorf("create order details: %w", err)
		}

		if !project {
			return nil
		}
		g, err := s.orders.LoadGraph(tx, order.ID)
		if err != nil {
			return err
		}
		view = Project(g, s.log)
		return nil
	})
	if err != nil {
		return Created{}, OrderView{}, asPersistence("create order", err)
	}

	s.log.Info("order created",
		"action", "order_created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"order_method", order.OrderMethod,
		"payment_method", order.PaymentMethod,
		"items", len(in.Items),
	)
	publish(ctx, s.events, s.log, queue.OrderEvent{
		Type:        queue.EventOrderCreated,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Total:       order.Total,
		OccurredAt:  now,
	})

	return Created{OrderID: order.ID, OrderNumber: order.OrderNumber}, view, nil
}

func toSnapshot(it ItemInput) snapshot.Item {
	return snapshot.Item{
		ID:               it.ID,
		Name:             it.Name,
		Quantity:         it.Quantity,
		Price:            it.Price,
		OriginalPrice:    it.OriginalPrice,
		Note:             it.Notes,
		Image:            it.Image,
		SelectedSubItems: it.SelectedSubItems,
		GroupOrder:       it.GroupOrder,
	}
}

func itemIDs(items []ItemInput) []uint {
	seen := make(map[uint]struct{}, len(items))
	out := make([]uint, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.ID]; ok {
			continue
		}
		seen[it.ID] = struct{}{}
		out = append(out, it.ID)
	}
	return out
}

// newOrderNumber 形如 ORD-20261018-1A2B3C4D；唯一索引兜底。
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}

// publish 事件投递失败只记录，不影响已提交的订单。
func publish(ctx context.Context, p EventPublisher, log *slog.Logger, ev queue.OrderEvent) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Warn("publish order event failed",
			"action", "event_publish_failed",
			"event", ev.Type,
			"order_id", ev.OrderID,
			"order_number", ev.OrderNumber,
			"error", err,
		)
	}
}
