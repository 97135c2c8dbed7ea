// Package payment 封装外部支付服务：创建结账会话 / 支付意图、查询会话。
//
// 金额在进入本包之前一律是十进制货币值，只有在调用 Provider 时才换算成最小货币单位。
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/snapshot"

	"github.com/shopspring/decimal"
)

// 元数据键：回调时唯一能把会话关联回订单的通道。
const (
	MetaOrderID     = "orderId"
	MetaOrderNumber = "orderNumber"
)

// ErrSessionNotFound 支付服务不认识该会话 id。
var ErrSessionNotFound = errors.New("payment session not found")

// GatewayError 支付服务调用失败（鉴权、网络、参数校验等），对上层不透明。
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string { return fmt.Sprintf("payment gateway %s: %v", e.Op, e.Err) }
func (e *GatewayError) Unwrap() error { return e.Err }

// PaymentStatus 会话的支付状态
type PaymentStatus string

const (
	StatusPaid              PaymentStatus = "paid"
	StatusUnpaid            PaymentStatus = "unpaid"
	StatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// Session 结账会话
type Session struct {
	ID            string
	URL           string
	PaymentStatus PaymentStatus
	Metadata      map[string]string
}

func (s Session) Paid() bool { return s.PaymentStatus == StatusPaid }

// OrderID 从元数据解析内部订单 id。
func (s Session) OrderID() (uint, error) {
	raw := strings.TrimSpace(s.Metadata[MetaOrderID])
	if raw == "" {
		return 0, fmt.Errorf("session %s: metadata %s missing", s.ID, MetaOrderID)
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("session %s: metadata %s=%q is not an order id", s.ID, MetaOrderID, raw)
	}
	return uint(id), nil
}

// Intent 支付意图，ClientSecret 交给前端完成支付。
type Intent struct {
	ID           string
	ClientSecret string
}

// LineItem 已换算为最小货币单位的结账行。
type LineItem struct {
	Name       string
	Image      string
	UnitAmount int64
	Quantity   int64
}

// ProviderCheckout / ProviderIntent 是发给 Provider 的请求，金额均为最小单位。
type ProviderCheckout struct {
	Currency       string
	LineItems      []LineItem
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

type ProviderIntent struct {
	Currency       string
	Amount         int64
	Metadata       map[string]string
	IdempotencyKey string
}

// Provider 是具体支付服务的最小接口。查询不存在的会话必须返回 ErrSessionNotFound。
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req ProviderCheckout) (Session, error)
	GetCheckoutSession(ctx context.Context, id string) (Session, error)
	CreatePaymentIntent(ctx context.Context, req ProviderIntent) (Intent, error)
}

// CheckoutRequest 创建结账会话的入参。
type CheckoutRequest struct {
	Order          model.Order
	Items          []snapshot.Item
	CustomerEmail  string
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
	IdempotencyKey string
}

// Gateway 在 Provider 之上负责：金额换算、元数据注入、超时、错误归一。
// Gateway 本身不重试；重试由调用方带上幂等键发起。
type Gateway struct {
	provider Provider
	currency string
	timeout  time.Duration
}

func NewGateway(p Provider, currency string, timeout time.Duration) *Gateway {
	return &Gateway{provider: p, currency: strings.ToLower(currency), timeout: timeout}
}

func (g *Gateway) Currency() string { return g.currency }

// CreateCheckoutSession 创建托管支付页。
func (g *Gateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (Session, error) {
	const op = "create checkout session"
	if len(req.Items) == 0 {
		return Session{}, &GatewayError{Op: op, Err: errors.New("no line items")}
	}

	// 快照 price 已包含所选子项的加价，子项不再单独计费
	lines := make([]LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		lines = append(lines, LineItem{
			Name:       lineName(it),
			Image:      it.Image,
			UnitAmount: MinorUnits(it.Price, g.currency),
			Quantity:   int64(qty),
		})
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	s, err := g.provider.CreateCheckoutSession(ctx, ProviderCheckout{
		Currency:       g.currency,
		LineItems:      lines,
		CustomerEmail:  req.CustomerEmail,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		Metadata:       orderMetadata(req.Order, req.Metadata),
		IdempotencyKey: scopedKey(req.Order.ID, "checkout", req.IdempotencyKey),
	})
	if err != nil {
		return Session{}, &GatewayError{Op: op, Err: err}
	}
	return s, nil
}

// CreatePaymentIntent 金额取自 Order.Total。
func (g *Gateway) CreatePaymentIntent(ctx context.Context, order model.Order, idempotencyKey string) (Intent, error) {
	const op = "create payment intent"
	amount := MinorUnits(order.Total, g.currency)
	if amount <= 0 {
		return Intent{}, &GatewayError{Op: op, Err: fmt.Errorf("order %d: amount must be > 0", order.ID)}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	in, err := g.provider.CreatePaymentIntent(ctx, ProviderIntent{
		Currency:       g.currency,
		Amount:         amount,
		Metadata:       orderMetadata(order, nil),
		IdempotencyKey: scopedKey(order.ID, "intent", idempotencyKey),
	})
	if err != nil {
		return Intent{}, &GatewayError{Op: op, Err: err}
	}
	return in, nil
}

// RetrieveSession 查询会话；未知 id 返回 ErrSessionNotFound。
func (g *Gateway) RetrieveSession(ctx context.Context, sessionID string) (Session, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	s, err := g.provider.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotFound)
		}
		return Session{}, &GatewayError{Op: "retrieve session", Err: err}
	}
	return s, nil
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

// orderMetadata 订单 id 与订单号总是写入，覆盖调用方同名键。
func orderMetadata(order model.Order, extra map[string]string) map[string]string {
	md := make(map[string]string, len(extra)+2)
	for k, v := range extra {
		md[k] = v
	}
	md[MetaOrderID] = strconv.FormatUint(uint64(order.ID), 10)
	md[MetaOrderNumber] = order.OrderNumber
	return md
}

// scopedKey 把客户端幂等键绑定到订单与操作，防止跨订单复用。
func scopedKey(orderID uint, op, key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	return fmt.Sprintf("order-%d-%s-%s", orderID, op, key)
}

func lineName(it snapshot.Item) string {
	if it.Name != "" {
		return it.Name
	}
	return fmt.Sprintf("Item #%d", it.ID)
}

// zeroDecimal 没有小数位的币种。
var zeroDecimal = map[string]bool{
	"jpy": true, "krw": true, "vnd": true, "clp": true,
	"isk": true, "ugx": true, "xof": true, "xaf": true,
}

// MinorUnits 十进制金额 → 最小货币单位，四舍五入（远离零）。
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimal[strings.ToLower(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}
