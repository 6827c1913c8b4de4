package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/types/optional"
	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/feedback"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/graphql/graphqltest"
	"github.com/block/storefront/internal/log"
	"github.com/block/storefront/internal/paging"
)

func newCatalog(t *testing.T, options ...Option) (context.Context, *Catalog, *graphqltest.Shop) {
	t.Helper()
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	shop := graphqltest.NewShop(t,
		graphqltest.Product{ID: "1", Name: "Enamel Mug", Price: decimal.RequireFromString("12.50"), CategorySlug: "kitchen"},
		graphqltest.Product{ID: "2", Name: "Tea Towel", Price: decimal.RequireFromString("8.00"), CategorySlug: "kitchen"},
		graphqltest.Product{ID: "3", Name: "Travel Mug", Price: decimal.RequireFromString("19.00"), CategorySlug: "outdoor"},
	)
	shop.AddCategory("1", "Kitchen", "kitchen")
	shop.AddCategory("2", "Outdoor", "outdoor")
	fb := feedback.New(language.English)
	c := New(shop.Client(t), fb, options...)
	t.Cleanup(func() {
		_ = c.Close()
		_ = fb.Close()
	})
	return ctx, c, shop
}

func TestOpen(t *testing.T) {
	ctx, c, shop := newCatalog(t, WithPageSize(2))

	assert.NoError(t, c.Open(ctx, Filters{}))
	view := c.Products.View()
	assert.Equal(t, []string{"Enamel Mug", "Tea Towel"}, names(view.Items))
	assert.True(t, view.Window.HasMore)
	assert.True(t, decimal.RequireFromString("12.5").Equal(view.Items[0].Price))

	categories, err := c.Categories(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []Category{{"1", "Kitchen", "kitchen"}, {"2", "Outdoor", "outdoor"}}, categories)
	assert.Equal(t, 1, shop.Count("categories"))

	c.InvalidateCategories()
	_, err = c.Categories(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 2, shop.Count("categories"))

	assert.NoError(t, c.LoadMore(ctx))
	assert.Equal(t, 3, len(c.Products.Items()))
	assert.False(t, c.Products.HasMore())
}

func TestFilterCategory(t *testing.T) {
	ctx, c, shop := newCatalog(t)

	assert.NoError(t, c.FilterCategory(ctx, "outdoor"))
	assert.Equal(t, []string{"Travel Mug"}, names(c.Products.Items()))
	requests := shop.Requests()
	last := requests[len(requests)-1]
	assert.Equal(t, "outdoor", last.StringVar("categorySlug"))
	assert.Equal(t, nil, last.Variables["search"])
	assert.Equal(t, paging.DefaultPageSize, last.IntVar("limit", 0))
}

func TestSearchIsDebounced(t *testing.T) {
	clk := clock.NewMock()
	ctx, c, shop := newCatalog(t, WithDebounce(500*time.Millisecond, clk))
	assert.NoError(t, c.FilterCategory(ctx, "kitchen"))

	for _, term := range []string{"m", "mu", "mug"} {
		c.Search(ctx, term)
		clk.Add(100 * time.Millisecond)
	}
	clk.Add(400 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Products.View().Filters.Search != "mug" || c.Products.View().State != paging.Loaded {
		assert.True(t, time.Now().Before(deadline), "search was not applied")
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, []string{"Enamel Mug"}, names(c.Products.Items()))
	assert.Equal(t, 2, shop.Count("products"))
}

func TestSearchKeepsCategoryPickedWhileWaiting(t *testing.T) {
	clk := clock.NewMock()
	ctx, c, shop := newCatalog(t, WithDebounce(500*time.Millisecond, clk))

	c.Search(ctx, "mug")
	clk.Add(100 * time.Millisecond)
	assert.NoError(t, c.FilterCategory(ctx, "outdoor"))
	clk.Add(500 * time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for c.Products.View().Filters.Search != "mug" || c.Products.View().State != paging.Loaded {
		assert.True(t, time.Now().Before(deadline), "search was not applied")
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, Filters{Search: "mug", CategorySlug: "outdoor"}, c.Products.View().Filters)
	assert.Equal(t, []string{"Travel Mug"}, names(c.Products.Items()))
	requests := shop.Requests()
	last := requests[len(requests)-1]
	assert.Equal(t, "outdoor", last.StringVar("categorySlug"))
	assert.Equal(t, "mug", last.StringVar("search"))
}

func TestProduct(t *testing.T) {
	ctx, c, shop := newCatalog(t)

	product, err := c.Product(ctx, "travel-mug")
	assert.NoError(t, err)
	assert.Equal(t, "Travel Mug", product.Name)
	assert.Equal(t, "19.00", product.Price.StringFixed(2))
	assert.Equal(t, optional.Some(Category{"2", "Outdoor", "outdoor"}), product.Category)
	assert.Equal(t, "travel-mug", shop.Requests()[0].StringVar("slug"))

	_, err = c.Product(ctx, "missing")
	assert.True(t, errors.Is(err, ErrProductNotFound))

	shop.Deactivate("tea-towel")
	_, err = c.Product(ctx, "tea-towel")
	assert.True(t, errors.Is(err, ErrProductNotFound))
}

func TestCreateAndUpdateCategory(t *testing.T) {
	ctx, c, shop := newCatalog(t)
	_, err := c.Categories(ctx)
	assert.NoError(t, err)

	created, err := c.CreateCategory(ctx, "Garden Tools")
	assert.NoError(t, err)
	assert.Equal(t, "Garden Tools", created.Name)
	assert.Equal(t, "garden-tools", created.Slug)
	categories, err := c.Categories(ctx)
	assert.NoError(t, err)
	assert.Equal(t, 3, len(categories))
	assert.Equal(t, 2, shop.Count("categories"))

	updated, err := c.UpdateCategory(ctx, created.ID, "Garden")
	assert.NoError(t, err)
	assert.Equal(t, Category{created.ID, "Garden", "garden"}, updated)
	requests := shop.Requests()
	var mutation graphqltest.Request
	for _, req := range requests {
		if req.Field == "updateCategory" {
			mutation = req
		}
	}
	_, isNumber := mutation.Variables["id"].(float64)
	assert.True(t, isNumber, "category ids are sent as integers")
	categories, err = c.Categories(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "Garden", categories[2].Name)

	_, err = c.CreateCategory(ctx, "  ")
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))

	_, err = c.UpdateCategory(ctx, "kitchen", "Kitchenware")
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))
	assert.Equal(t, 1, countField(shop.Requests(), "updateCategory"))
}

func TestDeleteCategory(t *testing.T) {
	ctx, c, shop := newCatalog(t)
	_, err := c.Categories(ctx)
	assert.NoError(t, err)

	declineCtx, cancelDecline := context.WithCancel(ctx)
	feedback.AutoConfirm(declineCtx, c.feedback, false)
	deleted, err := c.DeleteCategory(ctx, Category{"2", "Outdoor", "outdoor"})
	cancelDecline()
	assert.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 0, shop.Count("deleteCategory"))

	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()
	waitForNoConfirmer(t, ctx, c.feedback)
	feedback.AutoConfirm(acceptCtx, c.feedback, true)
	deleted, err = c.DeleteCategory(ctx, Category{"2", "Outdoor", "outdoor"})
	assert.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, 1, len(shop.Categories()))
	categories, err := c.Categories(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []Category{{"1", "Kitchen", "kitchen"}}, categories)
	assert.Equal(t, 2, shop.Count("categories"))

	deleted, err = c.DeleteCategory(ctx, Category{"2", "Outdoor", "outdoor"})
	assert.False(t, deleted)
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))
}

// waitForNoConfirmer waits until a cancelled confirmer has unsubscribed.
func waitForNoConfirmer(t *testing.T, ctx context.Context, fb *feedback.Channel) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		attempt, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		_, err := fb.Confirm(attempt, "ping")
		cancel()
		if errors.Is(err, feedback.ErrNoConfirmer) {
			return
		}
		assert.True(t, time.Now().Before(deadline), "confirmer did not stop")
	}
}

func TestCreateWithImage(t *testing.T) {
	ctx, c, shop := newCatalog(t)

	product, err := c.Create(ctx, Input{Name: "Linen Apron", Price: decimal.RequireFromString("31.99"), IsActive: true},
		optional.Some(graphql.NewFile("apron.png", strings.NewReader("PNG"))))
	assert.NoError(t, err)
	assert.Equal(t, "Linen Apron", product.Name)
	assert.Equal(t, optional.Some("/media/products/apron.png"), product.ImageURL)

	requests := shop.Requests()
	req := requests[len(requests)-1]
	assert.True(t, req.Multipart)
	upload, ok := req.Upload("image")
	assert.True(t, ok)
	assert.Equal(t, "PNG", string(upload.Content))
	assert.Equal(t, nil, req.Variables["image"])
}

func TestCreateWithoutImage(t *testing.T) {
	ctx, c, shop := newCatalog(t)

	product, err := c.Create(ctx, Input{Name: "Candle", Price: decimal.RequireFromString("9")}, optional.None[graphql.File]())
	assert.NoError(t, err)
	assert.False(t, product.ImageURL.Ok())
	requests := shop.Requests()
	assert.False(t, requests[len(requests)-1].Multipart)
}

func TestCreateRejected(t *testing.T) {
	ctx, c, _ := newCatalog(t)

	_, err := c.Create(ctx, Input{Price: decimal.RequireFromString("9")}, optional.None[graphql.File]())
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))
	assert.EqualError(t, err, "createProduct was rejected: name is required")
}

func TestUpdate(t *testing.T) {
	ctx, c, _ := newCatalog(t)

	product, err := c.Update(ctx, "tea-towel", Input{Name: "Tea Towel", Price: decimal.RequireFromString("9.50")},
		optional.Some(graphql.NewFile("towel.jpg", strings.NewReader("JPG"))))
	assert.NoError(t, err)
	assert.Equal(t, "9.50", product.Price.StringFixed(2))
	assert.Equal(t, optional.Some("/media/products/towel.jpg"), product.ImageURL)

	_, err = c.Update(ctx, "missing", Input{Name: "X"}, optional.None[graphql.File]())
	assert.Equal(t, apierror.GraphQLError, apierror.KindOf(err))
}

func countField(requests []graphqltest.Request, field string) int {
	n := 0
	for _, req := range requests {
		if req.Field == field {
			n++
		}
	}
	return n
}

func names(products []Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return out
}
