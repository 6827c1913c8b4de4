// Package orders is the back-office order list and the storefront checkout.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/cart"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/paging"
)

// DefaultPageSize for the order list.
const DefaultPageSize = 20

// ErrEmptyCart is returned when checking out with nothing in the cart.
var ErrEmptyCart = errors.New("cart is empty")

type Status string

const (
	Placed    Status = "placed"
	Delivered Status = "delivered"
	Canceled  Status = "canceled"
)

// Statuses in display order.
var Statuses = []Status{Placed, Delivered, Canceled}

// ParseStatus validates a status name.
func ParseStatus(s string) (Status, error) {
	for _, status := range Statuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

type Item struct {
	Name              string          `json:"nameSnapshot"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
}

type Order struct {
	OrderID      string          `json:"orderId"`
	CustomerName string          `json:"customerName"`
	Status       Status          `json:"status"`
	GrandTotal   decimal.Decimal `json:"grandTotal"`
	Items        []Item          `json:"items"`
}

// Filters for the order list. An empty Status lists every order.
type Filters struct {
	Status Status
}

// Customer holds the checkout form.
type Customer struct {
	Name            string
	Email           string
	Phone           string
	ShippingAddress string
	ShippingCity    string
	ShippingZip     string
	DeliveryNotes   string
}

// Orders drives the order list and checkout.
type Orders struct {
	client   graphql.Executor
	feedback *feedback.Channel
	cart     *cart.Store

	// List is the accumulated order list.
	List *paging.Accumulator[Order, Filters]
}

// New creates an Orders view. Checkout refreshes store after success.
func New(client graphql.Executor, fb *feedback.Channel, store *cart.Store, pageSize int) *Orders {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	o := &Orders{client: client, feedback: fb, cart: store}
	o.List = paging.New("orders", pageSize, o.fetch)
	return o
}

// Open loads the first page of orders matching filters.
func (o *Orders) Open(ctx context.Context, filters Filters) error {
	return o.report(ctx, o.List.Load(ctx, filters))
}

// LoadMore appends the next page of orders.
func (o *Orders) LoadMore(ctx context.Context) error {
	return o.report(ctx, o.List.LoadMore(ctx))
}

func (o *Orders) fetch(ctx context.Context, filters Filters, offset, limit int) (paging.Page[Order], error) {
	result, err := graphql.QueryInto[struct {
		Orders []Order `json:"orders"`
	}](ctx, o.client, ordersQuery, graphql.Variables{
		"status": graphql.OptionalString(string(filters.Status)),
		"limit":  graphql.Int(limit),
		"offset": graphql.Int(offset),
	})
	if err != nil {
		return paging.Page[Order]{}, err
	}
	return paging.Page[Order]{Items: result.Orders}, nil
}

// SetStatus changes an order's status and reloads the list so the active
// filter is honoured.
func (o *Orders) SetStatus(ctx context.Context, orderID string, status Status) (Order, error) {
	result, err := graphql.MutateInto[struct {
		UpdateOrderStatus struct {
			Success bool   `json:"success"`
			Order   *Order `json:"order"`
		} `json:"updateOrderStatus"`
	}](ctx, o.client, updateStatusMutation, graphql.Variables{
		"orderId": graphql.String(orderID),
		"status":  graphql.String(string(status)),
	})
	if err != nil {
		return Order{}, o.report(ctx, fmt.Errorf("failed to update order %s: %w", orderID, err))
	}
	payload := result.UpdateOrderStatus
	if err := apierror.CheckSuccess(payload.Success, "updateOrderStatus", fmt.Sprintf("status %q is not valid", status)); err != nil {
		return Order{}, o.report(ctx, err)
	}
	if payload.Order == nil {
		return Order{}, o.report(ctx, fmt.Errorf("failed to update order %s: %w", orderID, graphql.ErrMalformedResponse))
	}
	log.FromContext(ctx).Scope("orders").Infof("order %s is now %s", orderID, payload.Order.Status)
	if o.List.View().State != paging.Idle {
		if err := o.List.Reload(ctx); err != nil {
			return *payload.Order, o.report(ctx, err)
		}
	}
	return *payload.Order, nil
}

// Place checks out the current cart. Totals are taken from the server's cart
// snapshot, which is fetched first if needed, and the cart is refetched once
// the order exists since the server empties it.
func (o *Orders) Place(ctx context.Context, customer Customer) (Order, error) {
	if o.cart.Snapshot().Empty() {
		if err := o.cart.FetchCart(ctx); err != nil {
			return Order{}, o.report(ctx, err)
		}
	}
	snapshot := o.cart.Snapshot()
	if snapshot.Empty() {
		return Order{}, o.report(ctx, ErrEmptyCart)
	}
	result, err := graphql.MutateInto[struct {
		CreateOrder struct {
			Success bool   `json:"success"`
			Order   *Order `json:"order"`
		} `json:"createOrder"`
	}](ctx, o.client, createOrderMutation, graphql.Variables{"input": graphql.Object{
		"customerName":    graphql.String(customer.Name),
		"customerEmail":   graphql.String(customer.Email),
		"customerPhone":   graphql.String(customer.Phone),
		"shippingAddress": graphql.String(customer.ShippingAddress),
		"shippingCity":    graphql.String(customer.ShippingCity),
		"shippingZip":     graphql.String(customer.ShippingZip),
		"deliveryNotes":   graphql.OptionalString(customer.DeliveryNotes),
		"subtotal":        graphql.String(snapshot.Subtotal.String()),
		"grandTotal":      graphql.String(snapshot.Subtotal.String()),
	}})
	if err != nil {
		return Order{}, o.report(ctx, fmt.Errorf("checkout failed: %w", err))
	}
	payload := result.CreateOrder
	if err := apierror.CheckSuccess(payload.Success, "createOrder"); err != nil {
		return Order{}, o.report(ctx, err)
	}
	if payload.Order == nil {
		return Order{}, o.report(ctx, fmt.Errorf("checkout failed: %w", graphql.ErrMalformedResponse))
	}
	log.FromContext(ctx).Scope("orders").Infof("placed order %s", payload.Order.OrderID)
	if err := o.cart.FetchCart(ctx); err != nil {
		return *payload.Order, o.report(ctx, err)
	}
	return *payload.Order, nil
}

func (o *Orders) report(ctx context.Context, err error) error {
	if err != nil {
		o.feedback.Report(ctx, err)
	}
	return err
}

const orderFields = `orderId customerName status grandTotal items { nameSnapshot quantity unitPriceSnapshot lineTotal }`

const (
	ordersQuery = `query Orders($status: String, $limit: Int, $offset: Int) {
  orders(status: $status, limit: $limit, offset: $offset) { ` + orderFields + ` }
}`
	updateStatusMutation = `mutation UpdateOrderStatus($orderId: String!, $status: String!) {
  updateOrderStatus(orderId: $orderId, status: $status) { success order { ` + orderFields + ` } }
}`
	createOrderMutation = `mutation CreateOrder($input: OrderInput!) {
  createOrder(input: $input) { success order { ` + orderFields + ` } }
}`
)
