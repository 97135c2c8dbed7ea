package payment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeProvider 基于 stripe-go 的 Provider 实现。
// SDK 自带的网络重试被关闭：非幂等请求不能被悄悄重放。
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string, timeout time.Duration) *StripeProvider {
	return newStripeProvider(secretKey, timeout, "")
}

// newStripeProvider baseURL 非空时覆盖 API 地址（测试用）。
func newStripeProvider(secretKey string, timeout time.Duration, baseURL string) *StripeProvider {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(baseURL)
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req ProviderCheckout) (Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for _, li := range req.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.Image != "" {
			product.Images = stripe.StringSlice([]string{li.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(req.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(li.UnitAmount),
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return Session{}, err
	}
	return fromStripeSession(s), nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string) (Session, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && (se.Code == stripe.ErrorCodeResourceMissing || se.HTTPStatusCode == http.StatusNotFound) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	return fromStripeSession(s), nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req ProviderIntent) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func fromStripeSession(s *stripe.CheckoutSession) Session {
	md := make(map[string]string, len(s.Metadata))
	for k, v := range s.Metadata {
		md[k] = v
	}
	return Session{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: PaymentStatus(s.PaymentStatus),
		Metadata:      md,
	}
}
