package service

import (
	"context"
	"regexp"
	"testing"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNumberRe = regexp.MustCompile(`^ORD-\d{8}-[0-9A-F]{8}$`)

func TestCreateOrderDelivery(t *testing.T) {
	h := newHarness(t)

	created, err := h.orders.CreateOrder(context.Background(), h.deliveryInput())
	require.NoError(t, err)
	assert.NotZero(t, created.OrderID)
	assert.Regexp(t, orderNumberRe, created.OrderNumber)

	assert.Equal(t, map[string]int64{"customers": 1, "addresses": 1, "orders": 1, "details": 2}, h.counts(t))

	var o model.Order
	require.NoError(t, h.db.First(&o, created.OrderID).Error)
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, "card", o.PaymentMethod)
	assert.True(t, dec("20.40").Equal(o.Total))
	require.NotNil(t, o.DeliveryAddressID)

	evs := h.events.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, queue.EventOrderCreated, evs[0].Type)
	assert.Equal(t, created.OrderNumber, evs[0].OrderNumber)
	assert.Equal(t, model.OrderStatusPending, evs[0].Status)
}

func TestCreateOrderDeliveryMissingFields(t *testing.T) {
	h := newHarness(t)
	in := h.deliveryInput()
	in.CustomerInfo.Postcode = ""
	in.CustomerInfo.Street = " "
	in.CustomerInfo.House = ""

	_, err := h.orders.CreateOrder(context.Background(), in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 3)
	assert.Contains(t, err.Error(), "customerInfo.postcode")
	assert.Contains(t, err.Error(), "customerInfo.street")
	assert.Contains(t, err.Error(), "customerInfo.house")

	assert.Equal(t, map[string]int64{"customers": 0, "addresses": 0, "orders": 0, "details": 0}, h.counts(t))
	assert.Empty(t, h.events.Events())
}

func TestCreateOrderPickupNeedsNoAddress(t *testing.T) {
	h := newHarness(t)

	_, err := h.orders.CreateOrder(context.Background(), h.pickupInput())
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"customers": 1, "addresses": 0, "orders": 1, "details": 2}, h.counts(t))
}

func TestCreateOrderRequiredSelectionGroup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 只选了可选分组的选项，必选「Size」未满足
	in := h.pickupInput()
	in.Items[0] = h.pizza(h.olives)
	_, err := h.orders.CreateOrder(ctx, in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Problems, 1)
	assert.Contains(t, ve.Problems[0], `"Margherita"`)
	assert.Contains(t, ve.Problems[0], `"Size"`)
	assert.Zero(t, h.counts(t)["orders"])

	// 选了 Size，可选分组留空也可以
	in.Items[0] = h.pizza(h.small)
	_, err = h.orders.CreateOrder(ctx, in)
	require.NoError(t, err)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t)
	cases := map[string]func(in *CreateOrderInput){
		"unknown order method": func(in *CreateOrderInput) { in.OrderMethod = "drone" },
		"no items":             func(in *CreateOrderInput) { in.Items = nil },
		"negative quantity":    func(in *CreateOrderInput) { in.Items[1].Quantity = -1 },
		"unknown status":       func(in *CreateOrderInput) { in.Status = "Paid" },
		"negative total":       func(in *CreateOrderInput) { in.Total = dec("-1") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := h.pickupInput()
			mutate(&in)
			_, err := h.orders.CreateOrder(context.Background(), in)
			var ve *ValidationError
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Zero(t, h.counts(t)["orders"])
}

func TestCreateOrderRejectsTerminalStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, st := range []model.OrderStatus{model.OrderStatusCompleted, model.OrderStatusCancelled} {
		t.Run(string(st), func(t *testing.T) {
			in := h.pickupInput()
			in.Status = st
			in.PaymentMethod = "card"
			_, err := h.orders.CreateOrder(ctx, in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Error(), "not allowed on a new order")

			_, err = h.orders.CreateCashOrder(ctx, in)
			assert.ErrorAs(t, err, &ve)
		})
	}
	assert.Equal(t, map[string]int64{"customers": 0, "addresses": 0, "orders": 0, "details": 0}, h.counts(t))
	assert.Empty(t, h.events.Events())

	in := h.pickupInput()
	in.Status = model.OrderStatusPending
	created, err := h.orders.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, h.status(t, created.OrderID))
}

func TestCreateCashOrderUnknownPostcode(t *testing.T) {
	h := newHarness(t)
	in := h.deliveryInput()
	in.CustomerInfo.Postcode = "9999"

	_, err := h.orders.CreateCashOrder(context.Background(), in)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, map[string]int64{"customers": 0, "addresses": 0, "orders": 0, "details": 0}, h.counts(t))
}

func TestCreateOrderRollsBackPartialWrites(t *testing.T) {
	h := newHarness(t)
	h.orders.orderNumber = func(time.Time) string { return "ORD-20261018-DUPLICATE" }
	ctx := context.Background()

	_, err := h.orders.CreateOrder(ctx, h.deliveryInput())
	require.NoError(t, err)

	// 第二单在写订单主表时撞唯一索引，之前写入的顾客与地址必须一起回滚
	_, err = h.orders.CreateCashOrder(ctx, h.deliveryInput())
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, map[string]int64{"customers": 1, "addresses": 1, "orders": 1, "details": 2}, h.counts(t))
	assert.Len(t, h.events.Events(), 1)
}

func TestCreateCashOrderReturnsProjection(t *testing.T) {
	h := newHarness(t)
	in := h.pickupInput()
	in.PaymentMethod = ""
	in.SpecialNotes = "ring twice"

	view, err := h.orders.CreateCashOrder(context.Background(), in)
	require.NoError(t, err)

	assert.NotZero(t, view.OrderID)
	assert.Regexp(t, orderNumberRe, view.OrderNumber)
	assert.Equal(t, model.OrderStatusPending, view.Status)
	assert.Equal(t, "cash", view.PaymentMethod)
	assert.Equal(t, model.OrderMethodPickup, view.OrderMethod)
	assert.Equal(t, "ring twice", view.SpecialNotes)
	assert.True(t, dec("20.40").Equal(view.Total))
	assert.False(t, view.CreatedAt.IsZero())

	require.NotNil(t, view.CustomerInfo)
	assert.Equal(t, "Anna", view.CustomerInfo.Name)
	assert.Nil(t, view.CustomerInfo.Street)
	assert.Nil(t, view.CustomerInfo.Postcode)

	require.Len(t, view.Items, 2)
	pizza := view.Items[0]
	assert.Equal(t, "Margherita", pizza.Name)
	assert.Equal(t, "well done", pizza.Note)
	assert.Equal(t, []string{"Size", "Extras"}, pizza.GroupOrder)
	require.Len(t, pizza.SelectedSubItems, 1)
	assert.Equal(t, "Large", pizza.SelectedSubItems[0].Name)

	// 10.00×2 + 3.40×1（lemonade 无原价，取实付价）
	assert.True(t, dec("23.40").Equal(view.OriginalTotal), view.OriginalTotal.String())
	assert.Equal(t, 1, view.DiscountCoupon)
}

func TestCreateOrderSurvivesPublishFailure(t *testing.T) {
	h := newHarness(t)
	h.events.err = errBroker

	created, err := h.orders.CreateOrder(context.Background(), h.pickupInput())
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusPending, h.status(t, created.OrderID))
	assert.Contains(t, h.logs.String(), `"action":"event_publish_failed"`)
}

func TestCreateOrderHonoursCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.orders.CreateOrder(ctx, h.pickupInput())
	require.Error(t, err)
	assert.Zero(t, h.counts(t)["orders"])
}

func TestGetOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, err := h.orders.CreateOrder(ctx, h.deliveryInput())
	require.NoError(t, err)

	view, err := h.orders.GetOrder(ctx, created.OrderID)
	require.NoError(t, err)
	assert.Equal(t, created.OrderNumber, view.OrderNumber)
	require.NotNil(t, view.CustomerInfo.Postcode)
	assert.Equal(t, "1010", *view.CustomerInfo.Postcode)
	assert.Equal(t, "Ringstrasse", *view.CustomerInfo.Street)
	assert.Equal(t, "4", *view.CustomerInfo.Door)
	assert.Equal(t, "", *view.CustomerInfo.Bell)

	_, err = h.orders.GetOrder(ctx, created.OrderID+1)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.orders.GetOrder(ctx, 0)
	assert.ErrorIs(t, err, ErrBadRequest)
}
