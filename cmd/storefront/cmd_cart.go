package main

import (
	"context"
	"strconv"

	"github.com/block/storefront/internal/cart"
	"github.com/block/storefront/internal/terminal"
)

type cartCmd struct {
	Show   cartShowCmd   `cmd:"" default:"withargs" help:"Show the cart."`
	Add    cartAddCmd    `cmd:"" help:"Add a product to the cart."`
	Set    cartSetCmd    `cmd:"" help:"Set the quantity of a line. Zero removes it."`
	Inc    cartIncCmd    `cmd:"" help:"Add one unit of a product."`
	Dec    cartDecCmd    `cmd:"" help:"Remove one unit of a product."`
	Remove cartRemoveCmd `cmd:"" help:"Remove a line from the cart."`
	Clear  cartClearCmd  `cmd:"" help:"Empty the cart."`
}

type cartShowCmd struct {
	Count bool `help:"Only show the number of items."`
	JSON  bool `help:"Output JSON."`
}

func (c *cartShowCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if c.Count {
		if err := store.LoadCountOnce(ctx); err != nil {
			return err
		}
		term.Printf("%d\n", store.Count())
		return nil
	}
	if err := store.FetchCart(ctx); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), c.JSON)
}

type cartAddCmd struct {
	Product  string `arg:"" help:"Product ID."`
	Quantity int    `arg:"" optional:"" default:"1" help:"Units to add."`
}

func (c *cartAddCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := store.Add(ctx, c.Product, c.Quantity); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

type cartSetCmd struct {
	Product  string `arg:"" help:"Product ID."`
	Quantity int    `arg:"" help:"New quantity."`
}

func (c *cartSetCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := cart.NewLines(store).Set(ctx, c.Product, c.Quantity); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

type cartIncCmd struct {
	Product string `arg:"" help:"Product ID."`
}

func (c *cartIncCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := cart.NewLines(store).Increment(ctx, c.Product); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

type cartDecCmd struct {
	Product string `arg:"" help:"Product ID."`
}

func (c *cartDecCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := store.FetchCart(ctx); err != nil {
		return err
	}
	if err := cart.NewLines(store).Decrement(ctx, c.Product); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

type cartRemoveCmd struct {
	Product string `arg:"" help:"Product ID."`
}

func (c *cartRemoveCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := store.Remove(ctx, c.Product); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

type cartClearCmd struct{}

func (c *cartClearCmd) Run(ctx context.Context, store *cart.Store, term *terminal.Terminal) error {
	if err := store.Clear(ctx); err != nil {
		return err
	}
	return printCart(term, store.Snapshot(), false)
}

func printCart(term *terminal.Terminal, snapshot cart.Snapshot, asJSON bool) error {
	if asJSON {
		return term.PrintValue(snapshot)
	}
	if snapshot.Empty() {
		term.Printf("The cart is empty.\n")
		return nil
	}
	rows := make([][]string, 0, len(snapshot.Lines)+1)
	for _, line := range snapshot.Lines {
		rows = append(rows, []string{
			line.ProductID,
			line.Product.Name,
			strconv.Itoa(line.Quantity),
			line.UnitPriceSnapshot.StringFixed(2),
			line.LineTotal.StringFixed(2),
		})
	}
	rows = append(rows, []string{"", "Subtotal", strconv.Itoa(snapshot.Count()), "", snapshot.Subtotal.StringFixed(2)})
	term.Table([]string{"PRODUCT", "NAME", "QTY", "UNIT", "TOTAL"}, rows)
	return nil
}
