package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/payment/paymenttest"
	"restaurant_orders/internal/queue"
	"restaurant_orders/internal/repository"
	"restaurant_orders/internal/snapshot"
	"restaurant_orders/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := store.Open("sqlite", dsn)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// seedCatalog：邮编 1010；菜品 1 有必选「Size」和可选「Extras」。
func seedCatalog(t *testing.T, db *gorm.DB) (small, large, olives uint) {
	t.Helper()
	require.NoError(t, db.Create(&model.Postcode{Code: "1010"}).Error)
	size := model.SelectionGroup{MenuItemID: 1, Name: "Size", Required: true, SortOrder: 1,
		Options: []model.SelectionOption{{Name: "Small"}, {Name: "Large", Price: dec("2.50")}}}
	extras := model.SelectionGroup{MenuItemID: 1, Name: "Extras", SortOrder: 2,
		Options: []model.SelectionOption{{Name: "Olives", Price: dec("1")}}}
	require.NoError(t, db.Create(&size).Error)
	require.NoError(t, db.Create(&extras).Error)
	return size.Options[0].ID, size.Options[1].ID, extras.Options[0].ID
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev queue.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []queue.OrderEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.OrderEvent(nil), p.events...)
}

type harness struct {
	db       *gorm.DB
	orders   *OrderService
	payments *PaymentService
	provider *paymenttest.Provider
	events   *recordingPublisher
	logs     *bytes.Buffer

	small, large, olives uint
}

type harnessOption func(*PaymentOptions)

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	db := newTestDB(t)
	small, large, olives := seedCatalog(t, db)

	logs := &bytes.Buffer{}
	log := slog.New(slog.NewJSONHandler(&lockedWriter{w: logs}, nil))
	events := &recordingPublisher{}
	provider := paymenttest.New()
	repo := repository.NewOrderRepository()

	po := PaymentOptions{
		SuccessURL: "https://shop.test/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  "https://shop.test/cancel?session_id={CHECKOUT_SESSION_ID}",
		Events:     events,
	}
	for _, o := range opts {
		o(&po)
	}

	return &harness{
		db:       db,
		orders:   NewOrderService(db, repo, repository.NewCatalogRepository(db), events, log),
		payments: NewPaymentService(db, repo, payment.NewGateway(provider, "eur", 2*time.Second), po, log),
		provider: provider,
		events:   events,
		logs:     logs,
		small:    small,
		large:    large,
		olives:   olives,
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (h *harness) pizza(optionIDs ...uint) ItemInput {
	return ItemInput{
		ID:                1,
		Name:              "Margherita",
		Quantity:          2,
		Price:             dec("8.50"),
		OriginalPrice:     dec("10.00"),
		Notes:             "well done",
		SelectedOptionIDs: optionIDs,
		SelectedSubItems: []snapshot.SubItem{
			{ID: h.large, Name: "Large", GroupName: "Size", Type: "size", Price: dec("2.50"), Quantity: 1},
		},
		GroupOrder: []string{"Size", "Extras"},
		Image:      "https://img.test/margherita.jpg",
	}
}

func (h *harness) pickupInput() CreateOrderInput {
	return CreateOrderInput{
		Items:         []ItemInput{h.pizza(h.large), {ID: 2, Name: "Lemonade", Quantity: 1, Price: dec("3.40")}},
		CustomerInfo:  CustomerInput{Name: "Anna", Email: "anna@example.com", Phone: "+43 1 234"},
		OrderMethod:   model.OrderMethodPickup,
		PaymentMethod: "card",
		Total:         dec("20.40"),
	}
}

func (h *harness) deliveryInput() CreateOrderInput {
	in := h.pickupInput()
	in.OrderMethod = model.OrderMethodDelivery
	in.CustomerInfo.Postcode = "1010"
	in.CustomerInfo.Street = "Ringstrasse"
	in.CustomerInfo.House = "12"
	in.CustomerInfo.Door = "4"
	return in
}

// counts 返回四张订单相关表的行数。
func (h *harness) counts(t *testing.T) map[string]int64 {
	t.Helper()
	out := map[string]int64{}
	for name, m := range map[string]any{
		"customers": &model.CustomerOrderInfo{},
		"addresses": &model.DeliveryAddress{},
		"orders":    &model.Order{},
		"details":   &model.OrderDetail{},
	} {
		var n int64
		require.NoError(t, h.db.Model(m).Count(&n).Error)
		out[name] = n
	}
	return out
}

func (h *harness) status(t *testing.T, orderID uint) model.OrderStatus {
	t.Helper()
	var o model.Order
	require.NoError(t, h.db.First(&o, orderID).Error)
	return o.Status
}

var errBroker = errors.New("broker unavailable")
