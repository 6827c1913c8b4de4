// Package catalog is the product list view and the back-office product form.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alecthomas/types/optional"
	"github.com/benbjohnson/clock"
	"github.com/jellydator/ttlcache/v3"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/paging"
)

const categoriesTTL = 5 * time.Minute

// ErrProductNotFound is returned by Product for unknown or inactive products.
var ErrProductNotFound = errors.New("product not found or not available")

type Product struct {
	ID           string
	Name         string
	Slug         string
	Price        decimal.Decimal
	ImageURL     optional.Option[string]
	CategorySlug string
	IsActive     bool
}

// ProductDetail is a product as shown on its own page.
type ProductDetail struct {
	Product
	Description string
	SKU         string
	StockQty    int
	Category    optional.Option[Category]
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Filters narrow the product list. The zero value lists everything.
type Filters struct {
	Search       string
	CategorySlug string
}

// Input is the editable part of a product.
type Input struct {
	Name        string
	Description string
	SKU         string
	Price       decimal.Decimal
	StockQty    int
	CategoryID  optional.Option[string]
	IsActive    bool
}

func (i Input) value() graphql.Object {
	category := graphql.Null()
	if id, ok := i.CategoryID.Get(); ok {
		category = graphql.ID(id)
	}
	return graphql.Object{
		"name":        graphql.String(i.Name),
		"description": graphql.String(i.Description),
		"sku":         graphql.String(i.SKU),
		"price":       graphql.String(i.Price.String()),
		"stockQty":    graphql.Int(i.StockQty),
		"categoryId":  category,
		"isActive":    graphql.Bool(i.IsActive),
	}
}

// Option configures a Catalog.
type Option func(*config)

type config struct {
	pageSize int
	debounce time.Duration
	clock    clock.Clock
}

func WithPageSize(size int) Option { return func(c *config) { c.pageSize = size } }

// WithDebounce sets the quiet period for Search and the clock that measures it.
func WithDebounce(delay time.Duration, clk clock.Clock) Option {
	return func(c *config) {
		c.debounce = delay
		c.clock = clk
	}
}

// Catalog drives the storefront product list.
type Catalog struct {
	client     graphql.Executor
	feedback   *feedback.Channel
	categories *ttlcache.Cache[string, []Category]
	search     *paging.Debouncer[searchRequest]

	// Products is the accumulated product list.
	Products *paging.Accumulator[Product, Filters]
}

type searchRequest struct {
	ctx  context.Context //nolint:containedctx
	term string
}

// New creates a Catalog. Errors from debounced searches are reported to fb.
func New(client graphql.Executor, fb *feedback.Channel, options ...Option) *Catalog {
	cfg := config{pageSize: paging.DefaultPageSize, debounce: paging.DefaultDebounce, clock: clock.New()}
	for _, option := range options {
		option(&cfg)
	}
	c := &Catalog{
		client:     client,
		feedback:   fb,
		categories: ttlcache.New[string, []Category](ttlcache.WithTTL[string, []Category](categoriesTTL)),
	}
	c.Products = paging.New("products", cfg.pageSize, c.fetchProducts)
	c.search = paging.NewDebouncer(cfg.clock, cfg.debounce, func(req searchRequest) {
		filters := c.Products.View().Filters
		filters.Search = req.term
		if err := c.Products.Load(req.ctx, filters); err != nil {
			c.feedback.Report(req.ctx, err)
		}
	})
	return c
}

// Close stops pending searches and update delivery.
func (c *Catalog) Close() error {
	c.search.Stop()
	return c.Products.Close()
}

// Open loads the categories and the first page of products together.
func (c *Catalog) Open(ctx context.Context, filters Filters) error {
	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		_, err := c.Categories(ctx)
		return err
	})
	wg.Go(func() error { return c.Products.Load(ctx, filters) })
	if err := wg.Wait(); err != nil {
		c.feedback.Report(ctx, err)
		return err
	}
	return nil
}

// Search reloads the list once the search term has settled. The other
// filters are read when the search fires, so a category picked in the
// meantime is kept.
func (c *Catalog) Search(ctx context.Context, term string) {
	c.search.Push(searchRequest{ctx: ctx, term: term})
}

// FilterCategory reloads the list immediately for a category.
func (c *Catalog) FilterCategory(ctx context.Context, slug string) error {
	filters := c.Products.View().Filters
	filters.CategorySlug = slug
	if err := c.Products.Load(ctx, filters); err != nil {
		c.feedback.Report(ctx, err)
		return err
	}
	return nil
}

// LoadMore appends the next page of products.
func (c *Catalog) LoadMore(ctx context.Context) error {
	if err := c.Products.LoadMore(ctx); err != nil {
		c.feedback.Report(ctx, err)
		return err
	}
	return nil
}

// Categories returns all categories, cached for a few minutes.
func (c *Catalog) Categories(ctx context.Context) ([]Category, error) {
	if item := c.categories.Get("all"); item != nil {
		return item.Value(), nil
	}
	result, err := graphql.QueryInto[struct {
		Categories []Category `json:"categories"`
	}](ctx, c.client, categoriesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	log.FromContext(ctx).Scope("catalog").Debugf("loaded %d categories", len(result.Categories))
	c.categories.Set("all", result.Categories, ttlcache.DefaultTTL)
	return result.Categories, nil
}

// InvalidateCategories drops the cached categories.
func (c *Catalog) InvalidateCategories() { c.categories.DeleteAll() }

// CreateCategory adds a category. The slug is derived by the server.
func (c *Catalog) CreateCategory(ctx context.Context, name string) (Category, error) {
	result, err := graphql.MutateInto[struct {
		CreateCategory categoryPayload `json:"createCategory"`
	}](ctx, c.client, createCategoryMutation, graphql.Variables{"name": graphql.String(name)})
	if err != nil {
		return Category{}, c.report(ctx, fmt.Errorf("failed to create category %q: %w", name, err))
	}
	return c.categorySaved(ctx, "createCategory", result.CreateCategory)
}

// UpdateCategory renames a category.
func (c *Catalog) UpdateCategory(ctx context.Context, id, name string) (Category, error) {
	numeric, err := categoryID(id)
	if err != nil {
		return Category{}, c.report(ctx, err)
	}
	result, err := graphql.MutateInto[struct {
		UpdateCategory categoryPayload `json:"updateCategory"`
	}](ctx, c.client, updateCategoryMutation, graphql.Variables{"id": graphql.Int(numeric), "name": graphql.String(name)})
	if err != nil {
		return Category{}, c.report(ctx, fmt.Errorf("failed to update category %s: %w", id, err))
	}
	return c.categorySaved(ctx, "updateCategory", result.UpdateCategory)
}

// DeleteCategory removes a category after the user confirms. It reports
// whether the category was deleted; declining is not an error.
func (c *Catalog) DeleteCategory(ctx context.Context, category Category) (bool, error) {
	numeric, err := categoryID(category.ID)
	if err != nil {
		return false, c.report(ctx, err)
	}
	ok, err := c.feedback.Confirm(ctx, "Delete category %q?", category.Name)
	if err != nil {
		return false, err
	}
	if !ok {
		log.FromContext(ctx).Scope("catalog").Debugf("deletion of category %s declined", category.ID)
		return false, nil
	}
	result, err := graphql.MutateInto[struct {
		DeleteCategory struct {
			Success bool `json:"success"`
		} `json:"deleteCategory"`
	}](ctx, c.client, deleteCategoryMutation, graphql.Variables{"id": graphql.Int(numeric)})
	if err != nil {
		return false, c.report(ctx, fmt.Errorf("failed to delete category %s: %w", category.ID, err))
	}
	if err := apierror.CheckSuccess(result.DeleteCategory.Success, "deleteCategory"); err != nil {
		return false, c.report(ctx, err)
	}
	c.InvalidateCategories()
	if _, err := c.Categories(ctx); err != nil {
		return true, c.report(ctx, err)
	}
	return true, nil
}

type categoryPayload struct {
	Success  bool      `json:"success"`
	Category *Category `json:"category"`
}

func (c *Catalog) categorySaved(ctx context.Context, field string, payload categoryPayload) (Category, error) {
	if err := apierror.CheckSuccess(payload.Success, field); err != nil {
		return Category{}, c.report(ctx, err)
	}
	if payload.Category == nil {
		return Category{}, c.report(ctx, fmt.Errorf("%s failed: %w", field, graphql.ErrMalformedResponse))
	}
	c.InvalidateCategories()
	if _, err := c.Categories(ctx); err != nil {
		return *payload.Category, c.report(ctx, err)
	}
	return *payload.Category, nil
}

// Categories are addressed by integer IDs in mutations.
func categoryID(id string) (int, error) {
	numeric, err := strconv.Atoi(id)
	if err != nil {
		return 0, apierror.Validation(fmt.Sprintf("invalid category id %q", id))
	}
	return numeric, nil
}

func (c *Catalog) report(ctx context.Context, err error) error {
	c.feedback.Report(ctx, err)
	return err
}

// Product fetches a single product by slug. Inactive products are not
// shown on the storefront and yield ErrProductNotFound.
func (c *Catalog) Product(ctx context.Context, slug string) (ProductDetail, error) {
	result, err := graphql.QueryInto[struct {
		Product *wireProductDetail `json:"product"`
	}](ctx, c.client, productQuery, graphql.Variables{"slug": graphql.String(slug)})
	if err != nil {
		return ProductDetail{}, fmt.Errorf("failed to load product %s: %w", slug, err)
	}
	if result.Product == nil || !result.Product.IsActive {
		return ProductDetail{}, fmt.Errorf("%s: %w", slug, ErrProductNotFound)
	}
	return result.Product.detail(), nil
}

func (c *Catalog) fetchProducts(ctx context.Context, filters Filters, offset, limit int) (paging.Page[Product], error) {
	result, err := graphql.QueryInto[struct {
		Products []wireProduct `json:"products"`
	}](ctx, c.client, productsQuery, graphql.Variables{
		"search":       graphql.OptionalString(filters.Search),
		"categorySlug": graphql.OptionalString(filters.CategorySlug),
		"limit":        graphql.Int(limit),
		"offset":       graphql.Int(offset),
	})
	if err != nil {
		return paging.Page[Product]{}, err
	}
	page := paging.Page[Product]{Items: make([]Product, 0, len(result.Products))}
	for _, p := range result.Products {
		page.Items = append(page.Items, p.product())
	}
	return page, nil
}

// Create adds a product, uploading image when present.
func (c *Catalog) Create(ctx context.Context, input Input, image optional.Option[graphql.File]) (Product, error) {
	return c.save(ctx, "createProduct", createMutation, graphql.Variables{"input": input.value()}, image)
}

// Update edits the product identified by slug, replacing its image when one
// is given.
func (c *Catalog) Update(ctx context.Context, slug string, input Input, image optional.Option[graphql.File]) (Product, error) {
	return c.save(ctx, "updateProduct", updateMutation, graphql.Variables{"slug": graphql.String(slug), "input": input.value()}, image)
}

func (c *Catalog) save(ctx context.Context, field, query string, vars graphql.Variables, image optional.Option[graphql.File]) (Product, error) {
	type payload struct {
		Success bool         `json:"success"`
		Errors  []string     `json:"errors"`
		Product *wireProduct `json:"product"`
	}
	var (
		result map[string]payload
		err    error
	)
	if file, ok := image.Get(); ok {
		vars["image"] = file
		result, err = graphql.MutateMultipartInto[map[string]payload](ctx, c.client, query, vars)
	} else {
		vars["image"] = graphql.Null()
		result, err = graphql.MutateInto[map[string]payload](ctx, c.client, query, vars)
	}
	if err != nil {
		return Product{}, fmt.Errorf("%s failed: %w", field, err)
	}
	out := result[field]
	if err := apierror.CheckSuccess(out.Success, field, out.Errors...); err != nil {
		return Product{}, err
	}
	if out.Product == nil {
		return Product{}, fmt.Errorf("%s failed: %w", field, graphql.ErrMalformedResponse)
	}
	return out.Product.product(), nil
}

type wireProduct struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Price        decimal.Decimal `json:"price"`
	ImageURL     *string         `json:"imageUrl"`
	CategorySlug string          `json:"categorySlug"`
	IsActive     bool            `json:"isActive"`
}

func (w wireProduct) product() Product {
	return Product{
		ID:           w.ID,
		Name:         w.Name,
		Slug:         w.Slug,
		Price:        w.Price,
		ImageURL:     optional.Ptr(w.ImageURL),
		CategorySlug: w.CategorySlug,
		IsActive:     w.IsActive,
	}
}

type wireProductDetail struct {
	wireProduct
	Description string    `json:"description"`
	SKU         string    `json:"sku"`
	StockQty    int       `json:"stockQty"`
	Category    *Category `json:"category"`
}

func (w wireProductDetail) detail() ProductDetail {
	return ProductDetail{
		Product:     w.product(),
		Description: w.Description,
		SKU:         w.SKU,
		StockQty:    w.StockQty,
		Category:    optional.Ptr(w.Category),
	}
}

const productFields = `id name slug price imageUrl categorySlug isActive`

const (
	categoriesQuery = `query Categories { categories { id name slug } }`
	productQuery    = `query GetProduct($slug: String!) {
  product(slug: $slug) { ` + productFields + ` description sku stockQty category { id name slug } }
}`
	createCategoryMutation = `mutation CreateCategory($name: String!) {
  createCategory(name: $name) { success category { id name slug } }
}`
	updateCategoryMutation = `mutation UpdateCategory($id: Int!, $name: String!) {
  updateCategory(id: $id, name: $name) { success category { id name slug } }
}`
	deleteCategoryMutation = `mutation DeleteCategory($id: Int!) {
  deleteCategory(id: $id) { success }
}`
	productsQuery   = `query Products($search: String, $categorySlug: String, $limit: Int, $offset: Int) {
  products(search: $search, categorySlug: $categorySlug, limit: $limit, offset: $offset) { ` + productFields + ` }
}`
	createMutation = `mutation CreateProduct($input: ProductInput!, $image: Upload) {
  createProduct(input: $input, image: $image) { success errors product { ` + productFields + ` } }
}`
	updateMutation = `mutation UpdateProduct($slug: String!, $input: ProductInput!, $image: Upload) {
  updateProduct(slug: $slug, input: $input, image: $image) { success errors product { ` + productFields + ` } }
}`
)
