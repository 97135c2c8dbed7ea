package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/repository"
	"restaurant_orders/internal/snapshot"
	rediskey "restaurant_orders/pkg/redis"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentGateway 由 *payment.Gateway 实现。
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.Session, error)
	CreatePaymentIntent(ctx context.Context, order model.Order, idempotencyKey string) (payment.Intent, error)
	RetrieveSession(ctx context.Context, sessionID string) (payment.Session, error)
}

// OrderLocker 跨进程的订单级互斥，由 *redis.OrderLock 实现。
type OrderLocker interface {
	Lock(ctx context.Context, orderID uint) (func(), error)
}

// CheckoutCache 幂等键 → 已创建会话，由 *redis.CheckoutStore 实现。
type CheckoutCache interface {
	Get(ctx context.Context, orderID uint, idemKey string) (rediskey.CheckoutState, bool, error)
	Put(ctx context.Context, orderID uint, idemKey string, st rediskey.CheckoutState) error
}

// PaymentOptions 可选依赖，未配置 Redis / Kafka 时留空。
type PaymentOptions struct {
	SuccessURL string
	CancelURL  string
	Locker     OrderLocker
	Cache      CheckoutCache
	Events     EventPublisher
}

// PaymentService 发起支付并处理支付回调。
type PaymentService struct {
	db      *gorm.DB
	orders  *repository.OrderRepository
	gateway PaymentGateway
	opts    PaymentOptions
	log     *slog.Logger
}

func NewPaymentService(db *gorm.DB, orders *repository.OrderRepository, gateway PaymentGateway, opts PaymentOptions, log *slog.Logger) *PaymentService {
	return &PaymentService{db: db, orders: orders, gateway: gateway, opts: opts, log: log}
}

type CheckoutInput struct {
	OrderID        uint              `json:"orderId"`
	CustomerEmail  string            `json:"customerEmail"`
	Metadata       map[string]string `json:"metadata"`
	IdempotencyKey string            `json:"-"`
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type PaymentIntent struct {
	ClientSecret string `json:"clientSecret"`
}

// CreateCheckoutSession 以订单已保存的快照为准生成结账行，只接受 Pending 订单。
// 带幂等键的重复请求直接返回缓存的会话。
func (s *PaymentService) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (CheckoutSession, error) {
	if in.OrderID == 0 {
		return CheckoutSession{}, fmt.Errorf("orderId is required: %w", ErrBadRequest)
	}
	idemKey := strings.TrimSpace(in.IdempotencyKey)

	g, err := s.orders.LoadGraph(s.db.WithContext(ctx), in.OrderID)
	if err != nil {
		return CheckoutSession{}, lookupError(in.OrderID, err)
	}
	if g.Order.Status != model.OrderStatusPending {
		return CheckoutSession{}, fmt.Errorf("order %s is %s: %w", g.Order.OrderNumber, g.Order.Status, ErrBadRequest)
	}

	if idemKey != "" && s.opts.Cache != nil {
		st, ok, err := s.opts.Cache.Get(ctx, in.OrderID, idemKey)
		if err != nil {
			s.log.Warn("checkout cache read failed", "order_id", in.OrderID, "error", err)
		} else if ok {
			return CheckoutSession{SessionID: st.SessionID, URL: st.URL}, nil
		}
	}

	view := Project(g, s.log)
	if len(view.Items) == 0 {
		return CheckoutSession{}, fmt.Errorf("order %s has no payable items: %w", g.Order.OrderNumber, ErrBadRequest)
	}
	// 快照 price 是含选项的单价；与订单 total 对不上时只记录，收款仍以快照为准
	if sum := itemsTotal(view.Items); !sum.Equal(g.Order.Total) {
		s.log.Warn("checkout line items disagree with order total",
			"action", "checkout_total_mismatch",
			"order_id", g.Order.ID,
			"order_number", g.Order.OrderNumber,
			"order_total", g.Order.Total.StringFixed(2),
			"items_total", sum.StringFixed(2),
		)
	}
	email := strings.TrimSpace(in.CustomerEmail)
	if email == "" && g.Customer != nil {
		email = g.Customer.Email
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Order:          g.Order,
		Items:          view.Items,
		CustomerEmail:  email,
		SuccessURL:     s.opts.SuccessURL,
		CancelURL:      s.opts.CancelURL,
		Metadata:       in.Metadata,
		IdempotencyKey: idemKey,
	})
	if err != nil {
		s.logGatewayFailure("create_checkout_session", g.Order, err)
		return CheckoutSession{}, err
	}

	if idemKey != "" && s.opts.Cache != nil {
		st := rediskey.CheckoutState{SessionID: sess.ID, URL: sess.URL}
		if err := s.opts.Cache.Put(ctx, in.OrderID, idemKey, st); err != nil {
			s.log.Warn("checkout cache write failed", "order_id", in.OrderID, "error", err)
		}
	}
	return CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

// CreatePaymentIntent 金额取订单 total，只接受 Pending 订单。
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, orderID uint, idempotencyKey string) (PaymentIntent, error) {
	if orderID == 0 {
		return PaymentIntent{}, fmt.Errorf("orderId is required: %w", ErrBadRequest)
	}
	order, err := s.orders.GetOrder(s.db.WithContext(ctx), orderID)
	if err != nil {
		return PaymentIntent{}, lookupError(orderID, err)
	}
	if order.Status != model.OrderStatusPending {
		return PaymentIntent{}, fmt.Errorf("order %s is %s: %w", order.OrderNumber, order.Status, ErrBadRequest)
	}

	in, err := s.gateway.CreatePaymentIntent(ctx, *order, strings.TrimSpace(idempotencyKey))
	if err != nil {
		s.logGatewayFailure("create_payment_intent", *order, err)
		return PaymentIntent{}, err
	}
	return PaymentIntent{ClientSecret: in.ClientSecret}, nil
}

func itemsTotal(items []snapshot.Item) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return sum
}

func (s *PaymentService) logGatewayFailure(op string, order model.Order, err error) {
	s.log.Error("payment gateway call failed",
		"action", "gateway_call_failed",
		"op", op,
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"error", err,
	)
}

func lookupError(orderID uint, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return asPersistence("load order", err)
}
