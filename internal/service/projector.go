package service

import (
	"log/slog"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/repository"
	"restaurant_orders/internal/snapshot"

	"github.com/shopspring/decimal"
)

// CustomerInfoView 扁平化的顾客信息；自取订单的地址字段为 null。
type CustomerInfoView struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Comment  string  `json:"comment"`
	Postcode *string `json:"postcode"`
	Street   *string `json:"street"`
	House    *string `json:"house"`
	Stairs   *string `json:"stairs"`
	Buzzer   *string `json:"buzzer"`
	Door     *string `json:"door"`
	Bell     *string `json:"bell"`
}

// OrderView 返回给客户端的订单视图。
type OrderView struct {
	OrderID        uint              `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	Status         model.OrderStatus `json:"status"`
	Total          decimal.Decimal   `json:"total"`
	PaymentMethod  string            `json:"paymentMethod"`
	OrderMethod    model.OrderMethod `json:"orderMethod"`
	CreatedAt      time.Time         `json:"createdAt"`
	CustomerInfo   *CustomerInfoView `json:"customerInfo"`
	Items          []snapshot.Item   `json:"items"`
	DiscountCoupon int               `json:"discountCoupon"`
	SpecialNotes   string            `json:"specialNotes"`
	OriginalTotal  decimal.Decimal   `json:"originalTotal"`
}

// Project 由持久化的行组装订单视图。
// 单条快照解码失败只记录并跳过，不影响其余行。
// originalTotal = Σ originalPrice × quantity；任一行 price < originalPrice 则 discountCoupon = 1。
func Project(g repository.OrderGraph, log *slog.Logger) OrderView {
	v := OrderView{
		OrderID:       g.Order.ID,
		OrderNumber:   g.Order.OrderNumber,
		Status:        g.Order.Status,
		Total:         g.Order.Total,
		PaymentMethod: g.Order.PaymentMethod,
		OrderMethod:   g.Order.OrderMethod,
		CreatedAt:     g.Order.CreatedAt,
		CustomerInfo:  customerView(g),
		Items:         make([]snapshot.Item, 0, len(g.Details)),
		SpecialNotes:  g.Order.SpecialNotes,
		OriginalTotal: decimal.Zero,
	}

	for _, d := range g.Details {
		it, err := snapshot.Decode(d.Snapshot)
		if err != nil {
			log.Warn("skip undecodable order detail",
				"action", "snapshot_decode_failed",
				"order_id", g.Order.ID,
				"detail_id", d.ID,
				"error", err,
			)
			continue
		}
		v.Items = append(v.Items, it)
		v.OriginalTotal = v.OriginalTotal.Add(it.LineOriginalTotal())
		if it.Discounted() {
			v.DiscountCoupon = 1
		}
	}
	return v
}

func customerView(g repository.OrderGraph) *CustomerInfoView {
	if g.Customer == nil {
		return nil
	}
	cv := &CustomerInfoView{
		Name:    g.Customer.Name,
		Email:   g.Customer.Email,
		Phone:   g.Customer.Phone,
		Comment: g.Customer.Comment,
	}
	if g.Order.OrderMethod != model.OrderMethodDelivery || g.Address == nil {
		return cv
	}
	a := g.Address
	if g.Postcode != nil {
		cv.Postcode = ptr(g.Postcode.Code)
	}
	cv.Street = ptr(a.Street)
	cv.House = ptr(a.House)
	cv.Stairs = ptr(a.Stairs)
	cv.Buzzer = ptr(a.Buzzer)
	cv.Door = ptr(a.Door)
	cv.Bell = ptr(a.Bell)
	return cv
}

func ptr(s string) *string { return &s }
