package orders

import (
	"context"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/cart"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql/graphqltest"
	"github.com/block/storefront/internal/log"
)

type fixture struct {
	ctx      context.Context
	orders   *Orders
	cart     *cart.Store
	shop     *graphqltest.Shop
	feedback *feedback.Channel
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	shop := graphqltest.NewShop(t, graphqltest.Product{ID: "42", Name: "Enamel Mug", Price: decimal.RequireFromString("12.50")})
	for _, order := range []graphqltest.Order{
		{OrderID: "ORD-0001", CustomerName: "Kovács Anna", Status: "placed", GrandTotal: decimal.NewFromInt(10)},
		{OrderID: "ORD-0002", CustomerName: "Szabó Péter", Status: "delivered", GrandTotal: decimal.NewFromInt(20)},
		{OrderID: "ORD-0003", CustomerName: "Nagy Éva", Status: "placed", GrandTotal: decimal.NewFromInt(30)},
	} {
		shop.AddOrder(order)
	}
	client := shop.Client(t)
	fb := feedback.New(language.English)
	store := cart.NewStore(client)
	o := New(client, fb, store, 10)
	t.Cleanup(func() {
		_ = o.List.Close()
		_ = store.Close()
		_ = fb.Close()
	})
	return fixture{ctx: ctx, orders: o, cart: store, shop: shop, feedback: fb}
}

func TestOpenFiltersByStatus(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.orders.Open(f.ctx, Filters{Status: Placed}))
	assert.Equal(t, []string{"ORD-0003", "ORD-0001"}, ids(f.orders.List.Items()))
	assert.False(t, f.orders.List.HasMore())

	assert.NoError(t, f.orders.Open(f.ctx, Filters{}))
	items := f.orders.List.Items()
	assert.Equal(t, 3, len(items))
	assert.Equal(t, "20.00", items[1].GrandTotal.StringFixed(2))
}

func TestSetStatusReloadsList(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.orders.Open(f.ctx, Filters{Status: Placed}))

	order, err := f.orders.SetStatus(f.ctx, "ORD-0001", Delivered)
	assert.NoError(t, err)
	assert.Equal(t, Delivered, order.Status)
	assert.Equal(t, []string{"ORD-0003"}, ids(f.orders.List.Items()))
	assert.Equal(t, 2, f.shop.Count("orders"))
}

func TestSetStatusRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.SetStatus(f.ctx, "ORD-0001", Status("shipped"))
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(f.feedback.Err()))
	assert.Equal(t, 0, f.shop.Count("orders"))

	_, err = f.orders.SetStatus(f.ctx, "ORD-9999", Canceled)
	assert.Equal(t, apierror.GraphQLError, apierror.KindOf(err))
	assert.Equal(t, "The request failed: Order not found", f.feedback.Message())
}

func TestPlace(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.cart.Add(f.ctx, "42", 2))

	order, err := f.orders.Place(f.ctx, Customer{Name: "Tóth Gábor", Email: "gabor@example.com", ShippingCity: "Pécs"})
	assert.NoError(t, err)
	assert.Equal(t, "ORD-0004", order.OrderID)
	assert.Equal(t, Placed, order.Status)
	assert.Equal(t, "25.00", order.GrandTotal.StringFixed(2))
	assert.Equal(t, []Item{{
		Name:              "Enamel Mug",
		Quantity:          2,
		UnitPriceSnapshot: decimal.RequireFromString("12.50"),
		LineTotal:         decimal.RequireFromString("25.00"),
	}}, order.Items)

	assert.True(t, f.cart.Snapshot().Empty())
	assert.Equal(t, 0, f.cart.Count())
	requests := f.shop.Requests()
	checkout := requests[len(requests)-2]
	assert.Equal(t, "createOrder", checkout.Field)
	input := checkout.Variables["input"].(map[string]any) //nolint:forcetypeassert
	assert.Equal(t, "25", input["subtotal"])
	assert.Equal(t, nil, input["deliveryNotes"])
}

func TestPlaceWithEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.Place(f.ctx, Customer{Name: "Tóth Gábor"})
	assert.IsError(t, err, ErrEmptyCart)
	assert.Equal(t, 1, f.shop.Count("cart"))
	assert.Equal(t, 0, f.shop.Count("createOrder"))
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("canceled")
	assert.NoError(t, err)
	assert.Equal(t, Canceled, status)
	_, err = ParseStatus("lost")
	assert.EqualError(t, err, `unknown order status "lost"`)
}

func ids(orders []Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.OrderID)
	}
	return out
}
