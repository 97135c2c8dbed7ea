// Package paymenttest 提供内存版 payment.Provider，供测试与本地联调使用。
package paymenttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"restaurant_orders/internal/payment"
)

// Provider 内存支付服务：记录收到的请求，可注入错误，可手动把会话标记为已支付。
type Provider struct {
	mu       sync.Mutex
	seq      int
	sessions map[string]payment.Session
	byKey    map[string]string

	Checkouts []payment.ProviderCheckout
	Intents   []payment.ProviderIntent
	Gets      int

	// Err 非 nil 时所有调用都返回该错误。
	Err error
}

func New() *Provider {
	return &Provider{
		sessions: map[string]payment.Session{},
		byKey:    map[string]string{},
	}
}

func (p *Provider) CreateCheckoutSession(ctx context.Context, req payment.ProviderCheckout) (payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(ctx); err != nil {
		return payment.Session{}, err
	}
	p.Checkouts = append(p.Checkouts, req)

	if req.IdempotencyKey != "" {
		if id, ok := p.byKey[req.IdempotencyKey]; ok {
			return p.sessions[id], nil
		}
	}

	p.seq++
	id := fmt.Sprintf("cs_test_%d", p.seq)
	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}
	s := payment.Session{
		ID:            id,
		URL:           "https://checkout.test/pay/" + id,
		PaymentStatus: payment.StatusUnpaid,
		Metadata:      md,
	}
	p.sessions[id] = s
	if req.IdempotencyKey != "" {
		p.byKey[req.IdempotencyKey] = id
	}
	return s, nil
}

func (p *Provider) GetCheckoutSession(ctx context.Context, id string) (payment.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(ctx); err != nil {
		return payment.Session{}, err
	}
	p.Gets++
	s, ok := p.sessions[id]
	if !ok {
		return payment.Session{}, payment.ErrSessionNotFound
	}
	return s, nil
}

func (p *Provider) CreatePaymentIntent(ctx context.Context, req payment.ProviderIntent) (payment.Intent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(ctx); err != nil {
		return payment.Intent{}, err
	}
	p.Intents = append(p.Intents, req)
	p.seq++
	id := fmt.Sprintf("pi_test_%d", p.seq)
	return payment.Intent{ID: id, ClientSecret: id + "_secret"}, nil
}

// MarkPaid 模拟顾客在托管页完成支付。
func (p *Provider) MarkPaid(id string) error {
	return p.setStatus(id, payment.StatusPaid)
}

// PutSession 直接放入一个会话（例如元数据缺失的异常会话）。
func (p *Provider) PutSession(s payment.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[s.ID] = s
}

func (p *Provider) setStatus(id string, st payment.PaymentStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.sessions[id]
	if !ok {
		return errors.New("unknown session " + id)
	}
	s.PaymentStatus = st
	p.sessions[id] = s
	return nil
}

func (p *Provider) fail(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.Err
}
