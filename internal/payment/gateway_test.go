package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"restaurant_orders/internal/model"
	"restaurant_orders/internal/payment"
	"restaurant_orders/internal/payment/paymenttest"
	"restaurant_orders/internal/snapshot"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testOrder() model.Order {
	return model.Order{ID: 5, OrderNumber: "ORD-20261018-ABCDEF12", Total: dec("25.40")}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		amount   string
		currency string
		want     int64
	}{
		{"10", "eur", 1000},
		{"10.5", "EUR", 1050},
		{"0.005", "usd", 1},
		{"19.994", "usd", 1999},
		{"1500", "jpy", 1500},
		{"1500.5", "jpy", 1501},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, payment.MinorUnits(dec(c.amount), c.currency), "%s %s", c.amount, c.currency)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	fake := paymenttest.New()
	gw := payment.NewGateway(fake, "EUR", time.Second)

	s, err := gw.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{
		Order: testOrder(),
		Items: []snapshot.Item{
			{ID: 1, Name: "Margherita", Quantity: 2, Price: dec("8.45"), Image: "https://img/1.jpg"},
			{ID: 2, Quantity: 0, Price: dec("8.50")},
		},
		CustomerEmail:  "anna@example.com",
		SuccessURL:     "https://shop/success",
		CancelURL:      "https://shop/cancel",
		Metadata:       map[string]string{"orderId": "999", "channel": "web"},
		IdempotencyKey: "k1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.NotEmpty(t, s.URL)

	require.Len(t, fake.Checkouts, 1)
	req := fake.Checkouts[0]
	assert.Equal(t, "eur", req.Currency)
	assert.Equal(t, "anna@example.com", req.CustomerEmail)
	assert.Equal(t, "order-5-checkout-k1", req.IdempotencyKey)
	assert.Equal(t, map[string]string{
		"orderId":     "5",
		"orderNumber": "ORD-20261018-ABCDEF12",
		"channel":     "web",
	}, req.Metadata)
	assert.Equal(t, []payment.LineItem{
		{Name: "Margherita", Image: "https://img/1.jpg", UnitAmount: 845, Quantity: 2},
		{Name: "Item #2", UnitAmount: 850, Quantity: 1},
	}, req.LineItems)
}

func TestCreateCheckoutSessionWithoutItems(t *testing.T) {
	fake := paymenttest.New()
	gw := payment.NewGateway(fake, "eur", time.Second)

	_, err := gw.CreateCheckoutSession(context.Background(), payment.CheckoutRequest{Order: testOrder()})
	var gwErr *payment.GatewayError
	assert.ErrorAs(t, err, &gwErr)
	assert.Empty(t, fake.Checkouts)
}

func TestCreatePaymentIntent(t *testing.T) {
	fake := paymenttest.New()
	gw := payment.NewGateway(fake, "eur", time.Second)

	in, err := gw.CreatePaymentIntent(context.Background(), testOrder(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, in.ClientSecret)

	require.Len(t, fake.Intents, 1)
	assert.Equal(t, int64(2540), fake.Intents[0].Amount)
	assert.Equal(t, "", fake.Intents[0].IdempotencyKey)
	assert.Equal(t, "5", fake.Intents[0].Metadata[payment.MetaOrderID])

	zero := testOrder()
	zero.Total = decimal.Zero
	_, err = gw.CreatePaymentIntent(context.Background(), zero, "")
	var gwErr *payment.GatewayError
	assert.ErrorAs(t, err, &gwErr)
}

func TestRetrieveSession(t *testing.T) {
	fake := paymenttest.New()
	gw := payment.NewGateway(fake, "eur", time.Second)
	ctx := context.Background()

	created, err := gw.CreateCheckoutSession(ctx, payment.CheckoutRequest{
		Order: testOrder(),
		Items: []snapshot.Item{{ID: 1, Name: "Soup", Quantity: 1, Price: dec("4")}},
	})
	require.NoError(t, err)
	require.NoError(t, fake.MarkPaid(created.ID))

	s, err := gw.RetrieveSession(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, s.Paid())
	id, err := s.OrderID()
	require.NoError(t, err)
	assert.Equal(t, uint(5), id)

	_, err = gw.RetrieveSession(ctx, "cs_unknown")
	assert.ErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestProviderFailureBecomesGatewayError(t *testing.T) {
	fake := paymenttest.New()
	fake.Err = errors.New("invalid api key")
	gw := payment.NewGateway(fake, "eur", time.Second)

	_, err := gw.RetrieveSession(context.Background(), "cs_1")
	var gwErr *payment.GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "retrieve session", gwErr.Op)
	assert.NotErrorIs(t, err, payment.ErrSessionNotFound)
}

func TestSessionOrderID(t *testing.T) {
	cases := map[string]map[string]string{
		"missing":  {},
		"garbage":  {"orderId": "abc"},
		"zero":     {"orderId": "0"},
		"negative": {"orderId": "-3"},
	}
	for name, md := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := payment.Session{ID: "cs", Metadata: md}.OrderID()
			assert.Error(t, err)
		})
	}
}
