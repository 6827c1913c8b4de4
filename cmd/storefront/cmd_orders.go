package main

import (
	"context"
	"strconv"

	"github.com/block/storefront/internal/cart"
	"github.com/block/storefront/internal/config"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/orders"
	"github.com/block/storefront/internal/terminal"
)

type ordersCmd struct {
	List   ordersListCmd   `cmd:"" default:"withargs" help:"List orders, newest first."`
	Status ordersStatusCmd `cmd:"" help:"Change the status of an order."`
	Place  ordersPlaceCmd  `cmd:"" help:"Check out the current cart."`
}

type ordersListCmd struct {
	Status string `help:"Only list orders with this status: placed, delivered or canceled."`
	Pages  int    `help:"Number of pages to load. Zero loads every page." default:"1"`
	JSON   bool   `help:"Output JSON."`
}

func (o *ordersListCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, store *cart.Store, cfg *config.Config, term *terminal.Terminal) error {
	filters := orders.Filters{}
	if o.Status != "" {
		status, err := orders.ParseStatus(o.Status)
		if err != nil {
			return err
		}
		filters.Status = status
	}
	view := orders.New(client, fb, store, cfg.ListPageSize())
	defer view.List.Close() //nolint:errcheck
	if err := view.Open(ctx, filters); err != nil {
		return err
	}
	for page := 1; (o.Pages == 0 || page < o.Pages) && view.List.HasMore(); page++ {
		if err := view.LoadMore(ctx); err != nil {
			return err
		}
	}
	items := view.List.Items()
	if o.JSON {
		return term.PrintValue(items)
	}
	rows := make([][]string, 0, len(items))
	for _, order := range items {
		rows = append(rows, []string{order.OrderID, order.CustomerName, string(order.Status), strconv.Itoa(len(order.Items)), order.GrandTotal.StringFixed(2)})
	}
	term.Table([]string{"ORDER", "CUSTOMER", "STATUS", "ITEMS", "TOTAL"}, rows)
	return nil
}

type ordersStatusCmd struct {
	Order  string `arg:"" help:"Order ID, eg. ORD-0001."`
	Status string `arg:"" help:"New status (${enum})." enum:"placed,delivered,canceled"`
}

func (o *ordersStatusCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, store *cart.Store, term *terminal.Terminal) error {
	status, err := orders.ParseStatus(o.Status)
	if err != nil {
		return err
	}
	order, err := orders.New(client, fb, store, 0).SetStatus(ctx, o.Order, status)
	if err != nil {
		return err
	}
	term.Printf("%s is now %s\n", order.OrderID, order.Status)
	return nil
}

type ordersPlaceCmd struct {
	Name    string `help:"Customer name." required:""`
	Email   string `help:"Customer email." required:""`
	Phone   string `help:"Customer phone number." required:""`
	Address string `help:"Shipping address." required:""`
	City    string `help:"Shipping city." required:""`
	Zip     string `help:"Shipping postcode." required:""`
	Notes   string `help:"Delivery notes."`
}

func (o *ordersPlaceCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, store *cart.Store, term *terminal.Terminal) error {
	order, err := orders.New(client, fb, store, 0).Place(ctx, orders.Customer{
		Name:            o.Name,
		Email:           o.Email,
		Phone:           o.Phone,
		ShippingAddress: o.Address,
		ShippingCity:    o.City,
		ShippingZip:     o.Zip,
		DeliveryNotes:   o.Notes,
	})
	if err != nil {
		return err
	}
	return term.PrintValue(order)
}
