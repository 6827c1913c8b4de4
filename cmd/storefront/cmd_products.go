package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/types/optional"
	"github.com/shopspring/decimal"

	"github.com/block/storefront/internal/catalog"
	"github.com/block/storefront/internal/config"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/terminal"
)

type productsCmd struct {
	List   productsListCmd   `cmd:"" default:"withargs" help:"List products."`
	Get    productsGetCmd    `cmd:"" help:"Show a single product."`
	Create productsCreateCmd `cmd:"" help:"Create a product."`
	Update productsUpdateCmd `cmd:"" help:"Update a product."`
}

type productsListCmd struct {
	Search   string `help:"Only list products whose name matches." short:"s"`
	Category string `help:"Only list products in this category (slug)." short:"c"`
	Pages    int    `help:"Number of pages to load. Zero loads every page." default:"1"`
	JSON     bool   `help:"Output JSON."`
}

func (p *productsListCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, cfg *config.Config, term *terminal.Terminal) error {
	c := catalog.New(client, fb, catalog.WithPageSize(cfg.ListPageSize()))
	defer c.Close() //nolint:errcheck
	if err := c.Products.Load(ctx, catalog.Filters{Search: p.Search, CategorySlug: p.Category}); err != nil {
		return err
	}
	for page := 1; (p.Pages == 0 || page < p.Pages) && c.Products.HasMore(); page++ {
		if err := c.LoadMore(ctx); err != nil {
			return err
		}
	}
	products := c.Products.Items()
	if p.JSON {
		return term.PrintValue(products)
	}
	rows := make([][]string, 0, len(products))
	for _, product := range products {
		rows = append(rows, []string{product.ID, product.Slug, product.Name, product.Price.StringFixed(2), product.CategorySlug})
	}
	term.Table([]string{"ID", "SLUG", "NAME", "PRICE", "CATEGORY"}, rows)
	if c.Products.HasMore() {
		term.Printf("(more available, use --pages)\n")
	}
	return nil
}

type productsGetCmd struct {
	Slug string `arg:"" help:"Slug of the product."`
}

func (p *productsGetCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	c := catalog.New(client, fb)
	defer c.Close() //nolint:errcheck
	product, err := c.Product(ctx, p.Slug)
	if err != nil {
		return err
	}
	return term.PrintValue(product)
}

type productInput struct {
	Name        string          `help:"Product name." required:""`
	Price       decimal.Decimal `help:"Price." required:""`
	Description string          `help:"Description."`
	SKU         string          `help:"Stock keeping unit."`
	Stock       int             `help:"Units in stock."`
	CategoryID  string          `help:"Category ID."`
	Inactive    bool            `help:"Hide the product from the storefront."`
	Image       string          `help:"Image file to upload." type:"existingfile"`
}

func (p productInput) input() catalog.Input {
	category := optional.None[string]()
	if p.CategoryID != "" {
		category = optional.Some(p.CategoryID)
	}
	return catalog.Input{
		Name:        p.Name,
		Description: p.Description,
		SKU:         p.SKU,
		Price:       p.Price,
		StockQty:    p.Stock,
		CategoryID:  category,
		IsActive:    !p.Inactive,
	}
}

// image opens the image file, if any. The caller closes it.
func (p productInput) image() (optional.Option[graphql.File], func(), error) {
	if p.Image == "" {
		return optional.None[graphql.File](), func() {}, nil
	}
	f, err := os.Open(p.Image)
	if err != nil {
		return optional.None[graphql.File](), nil, fmt.Errorf("failed to open image: %w", err)
	}
	return optional.Some(graphql.NewFile(filepath.Base(p.Image), f)), func() { _ = f.Close() }, nil
}

type productsCreateCmd struct {
	Fields productInput `embed:""`
}

func (p *productsCreateCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	image, closeImage, err := p.Fields.image()
	if err != nil {
		return err
	}
	defer closeImage()
	c := catalog.New(client, fb)
	defer c.Close() //nolint:errcheck
	product, err := c.Create(ctx, p.Fields.input(), image)
	if err != nil {
		return err
	}
	return term.PrintValue(product)
}

type productsUpdateCmd struct {
	Slug   string       `arg:"" help:"Slug of the product to update."`
	Fields productInput `embed:""`
}

func (p *productsUpdateCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	image, closeImage, err := p.Fields.image()
	if err != nil {
		return err
	}
	defer closeImage()
	c := catalog.New(client, fb)
	defer c.Close() //nolint:errcheck
	product, err := c.Update(ctx, p.Slug, p.Fields.input(), image)
	if err != nil {
		return err
	}
	return term.PrintValue(product)
}

type categoriesCmd struct {
	List   categoriesListCmd   `cmd:"" default:"withargs" help:"List product categories."`
	Create categoriesCreateCmd `cmd:"" help:"Create a category."`
	Update categoriesUpdateCmd `cmd:"" help:"Rename a category."`
	Delete categoriesDeleteCmd `cmd:"" help:"Delete a category."`
}

type categoriesListCmd struct {
	JSON bool `help:"Output JSON."`
}

func (c *categoriesListCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	cat := catalog.New(client, fb)
	defer cat.Close() //nolint:errcheck
	categories, err := cat.Categories(ctx)
	if err != nil {
		return err
	}
	if c.JSON {
		return term.PrintValue(categories)
	}
	rows := make([][]string, 0, len(categories))
	for _, category := range categories {
		rows = append(rows, []string{category.ID, category.Slug, category.Name})
	}
	term.Table([]string{"ID", "SLUG", "NAME"}, rows)
	return nil
}

type categoriesCreateCmd struct {
	Name string `arg:"" help:"Category name."`
}

func (c *categoriesCreateCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	cat := catalog.New(client, fb)
	defer cat.Close() //nolint:errcheck
	category, err := cat.CreateCategory(ctx, c.Name)
	if err != nil {
		return err
	}
	term.Printf("Created category %s (%s).\n", category.Name, category.ID)
	return nil
}

type categoriesUpdateCmd struct {
	ID   string `arg:"" help:"Category ID."`
	Name string `arg:"" help:"New name."`
}

func (c *categoriesUpdateCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	cat := catalog.New(client, fb)
	defer cat.Close() //nolint:errcheck
	category, err := cat.UpdateCategory(ctx, c.ID, c.Name)
	if err != nil {
		return err
	}
	term.Printf("Renamed category %s to %s.\n", category.ID, category.Name)
	return nil
}

type categoriesDeleteCmd struct {
	ID string `arg:"" help:"Category ID."`
}

func (c *categoriesDeleteCmd) Run(ctx context.Context, client graphql.Executor, fb *feedback.Channel, term *terminal.Terminal) error {
	cat := catalog.New(client, fb)
	defer cat.Close() //nolint:errcheck
	categories, err := cat.Categories(ctx)
	if err != nil {
		return err
	}
	target := catalog.Category{ID: c.ID, Name: c.ID}
	for _, category := range categories {
		if category.ID == c.ID {
			target = category
		}
	}
	deleted, err := cat.DeleteCategory(ctx, target)
	if err != nil {
		return err
	}
	if deleted {
		term.Printf("Category %s deleted.\n", target.Name)
	} else {
		term.Printf("Kept category %s.\n", target.Name)
	}
	return nil
}
