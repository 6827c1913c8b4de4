package cart

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/graphql/graphqltest"
	"github.com/block/storefront/internal/log"
)

var catalog = []graphqltest.Product{
	{ID: "42", Name: "Enamel Mug", Price: decimal.RequireFromString("12.50")},
	{ID: "7", Name: "Tea Towel", Price: decimal.RequireFromString("8.00")},
	{ID: "9", Name: "Linen Apron", Price: decimal.RequireFromString("31.99")},
}

func newStore(t *testing.T) (context.Context, *Store, *graphqltest.Shop) {
	t.Helper()
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	shop := graphqltest.NewShop(t, catalog...)
	store := NewStore(shop.Client(t))
	t.Cleanup(func() { _ = store.Close() })
	return ctx, store, shop
}

func TestAddAccumulates(t *testing.T) {
	ctx, store, shop := newStore(t)

	assert.NoError(t, store.Add(ctx, "42", 1))
	assert.NoError(t, store.Add(ctx, "42", 1))

	line, ok := store.Snapshot().Line("42")
	assert.True(t, ok)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, "Enamel Mug", line.Product.Name)
	assert.True(t, decimal.RequireFromString("25").Equal(line.LineTotal))
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, 2, shop.Quantity("42"))
}

func TestSubtotalIsTakenVerbatim(t *testing.T) {
	ctx, store, shop := newStore(t)
	shop.SetSubtotalFunc(func(decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(4000) })

	assert.NoError(t, store.Add(ctx, "7", 3))
	snapshot := store.Snapshot()
	assert.Equal(t, "4000", snapshot.Subtotal.String())
	assert.True(t, decimal.RequireFromString("24").Equal(snapshot.Lines[0].LineTotal))
}

func TestSubtotalOfSeveralLines(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	shop := graphqltest.NewShop(t,
		graphqltest.Product{ID: "1", Name: "Cast Iron Pan", Price: decimal.NewFromInt(1000)},
		graphqltest.Product{ID: "2", Name: "Wooden Spoon", Price: decimal.NewFromInt(500)},
	)
	shop.SetSubtotalFunc(func(decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(4000) })
	store := NewStore(shop.Client(t))

	assert.NoError(t, store.Add(ctx, "1", 3))
	assert.NoError(t, store.Add(ctx, "2", 2))

	snapshot := store.Snapshot()
	assert.Equal(t, 2, len(snapshot.Lines))
	assert.True(t, decimal.NewFromInt(4000).Equal(snapshot.Subtotal))
	assert.Equal(t, 5, store.Count())
	pan, _ := snapshot.Line("1")
	spoon, _ := snapshot.Line("2")
	assert.True(t, decimal.NewFromInt(3000).Equal(pan.LineTotal))
	assert.True(t, decimal.NewFromInt(1000).Equal(spoon.LineTotal))
}

func TestNonPositiveQuantityIsNeverSent(t *testing.T) {
	ctx, store, shop := newStore(t)
	assert.NoError(t, store.Add(ctx, "42", 2))

	for _, quantity := range []int{0, -1} {
		err := store.SetQuantity(ctx, "42", quantity)
		assert.IsError(t, err, ErrNonPositiveQuantity)
		assert.IsError(t, store.Add(ctx, "42", quantity), ErrNonPositiveQuantity)
	}
	assert.Equal(t, 0, shop.Count("updateCartItem"))
	assert.Equal(t, 1, shop.Count("addToCart"))
	assert.Equal(t, 2, shop.Quantity("42"))
}

func TestLinesPolicy(t *testing.T) {
	ctx, store, shop := newStore(t)
	lines := NewLines(store)

	assert.NoError(t, lines.Increment(ctx, "42"))
	assert.NoError(t, lines.Increment(ctx, "42"))
	assert.NoError(t, lines.Decrement(ctx, "42"))
	assert.Equal(t, 1, shop.Quantity("42"))

	assert.NoError(t, lines.Set(ctx, "42", 5))
	assert.Equal(t, 5, store.Count())

	assert.NoError(t, lines.Set(ctx, "42", 1))
	assert.NoError(t, lines.Decrement(ctx, "42"))
	assert.True(t, store.Snapshot().Empty())
	assert.Equal(t, 1, shop.Count("removeFromCart"))

	assert.IsError(t, lines.Decrement(ctx, "42"), ErrUnknownLine)
	for _, req := range shop.Requests() {
		if req.Field == "updateCartItem" {
			assert.True(t, req.IntVar("quantity", 0) > 0, "non-positive quantity sent")
		}
	}
}

func TestLoadCountOnce(t *testing.T) {
	ctx, store, shop := newStore(t)
	assert.NoError(t, store.Add(ctx, "9", 4))
	store = NewStore(shop.Client(t))

	wg := errgroup.Group{}
	for range 5 {
		wg.Go(func() error { return store.LoadCountOnce(ctx) })
	}
	assert.NoError(t, wg.Wait())
	assert.NoError(t, store.LoadCountOnce(ctx))

	assert.Equal(t, 1, shop.Count("cartSummary"))
	assert.Equal(t, 4, store.Count())
	// The count is known before the lines are.
	assert.True(t, store.Snapshot().Empty())
}

func TestLoadCountOnceRetriesAfterFailure(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	server := graphqltest.NewServer(t)
	var calls atomic.Int32
	server.Handle("cartSummary", func(graphqltest.Request) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("cart unavailable")
		}
		return map[string]any{"count": 3}, nil
	})
	store := NewStore(server.Client(t))

	err := store.LoadCountOnce(ctx)
	assert.Equal(t, apierror.GraphQLError, apierror.KindOf(err))
	assert.NoError(t, store.LoadCountOnce(ctx))
	assert.NoError(t, store.LoadCountOnce(ctx))
	assert.Equal(t, 3, store.Count())
	assert.Equal(t, 2, server.Count("cartSummary"))
}

func TestCountInvariant(t *testing.T) {
	ctx, store, shop := newStore(t)
	lines := NewLines(store)
	rng := rand.New(rand.NewPCG(1, 2)) //nolint:gosec
	for i := range 60 {
		product := catalog[rng.IntN(len(catalog))].ID
		var err error
		switch rng.IntN(4) {
		case 0, 1:
			err = store.Add(ctx, product, 1+rng.IntN(3))
		case 2:
			err = lines.Set(ctx, product, rng.IntN(5))
		case 3:
			if _, ok := store.Snapshot().Line(product); ok {
				err = store.Remove(ctx, product)
			}
		}
		if err != nil {
			// Setting an absent line is rejected by the server.
			assert.Equal(t, apierror.GraphQLError, apierror.KindOf(err), "step %d", i)
		}
		snapshot := store.Snapshot()
		assert.Equal(t, snapshot.Count(), store.Count(), "step %d", i)
		serverCount := 0
		for _, p := range catalog {
			serverCount += shop.Quantity(p.ID)
		}
		assert.Equal(t, serverCount, store.Count(), "step %d", i)
	}
}

func TestStaleResponseIsDiscarded(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	server := graphqltest.NewServer(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	server.Handle("cart", func(graphqltest.Request) (any, error) {
		close(entered)
		<-release
		return map[string]any{"subtotal": "0.00", "items": []any{}}, nil
	})
	server.Handle("addToCart", func(graphqltest.Request) (any, error) {
		return map[string]any{"success": true, "cart": map[string]any{
			"subtotal": "10.00",
			"items": []any{map[string]any{
				"id": "1", "quantity": 1, "unitPriceSnapshot": "10.00", "lineTotal": "10.00",
				"product": map[string]any{"id": "42", "name": "Enamel Mug", "imageUrl": nil, "price": "10.00"},
			}},
		}}, nil
	})
	store := NewStore(server.Client(t))

	fetched := make(chan error, 1)
	go func() { fetched <- store.FetchCart(ctx) }()
	<-entered
	assert.NoError(t, store.Add(ctx, "42", 1))
	close(release)
	assert.NoError(t, <-fetched)

	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 1, len(store.Snapshot().Lines))
}

func TestCountRefreshDoesNotDiscardMutation(t *testing.T) {
	ctx, store, shop := newStore(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	shop.OnRequest("addToCart", func(graphqltest.Request) {
		close(entered)
		<-release
	})

	added := make(chan error, 1)
	go func() { added <- store.Add(ctx, "42", 1) }()
	<-entered
	assert.NoError(t, store.RefreshCount(ctx))
	close(release)
	assert.NoError(t, <-added)

	snapshot := store.Snapshot()
	assert.Equal(t, 1, len(snapshot.Lines))
	assert.Equal(t, snapshot.Count(), store.Count())
	assert.Equal(t, 1, store.Count())
}

func TestCountResponseOlderThanSnapshotIsDropped(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	server := graphqltest.NewServer(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	server.Handle("cartSummary", func(graphqltest.Request) (any, error) {
		close(entered)
		<-release
		return map[string]any{"count": 7}, nil
	})
	server.Handle("addToCart", func(graphqltest.Request) (any, error) {
		return map[string]any{"success": true, "cart": map[string]any{
			"subtotal": "10.00",
			"items": []any{map[string]any{
				"id": "1", "quantity": 1, "unitPriceSnapshot": "10.00", "lineTotal": "10.00",
				"product": map[string]any{"id": "42", "name": "Enamel Mug", "imageUrl": nil, "price": "10.00"},
			}},
		}}, nil
	})
	store := NewStore(server.Client(t))

	refreshed := make(chan error, 1)
	go func() { refreshed <- store.RefreshCount(ctx) }()
	<-entered
	assert.NoError(t, store.Add(ctx, "42", 1))
	close(release)
	assert.NoError(t, <-refreshed)

	assert.Equal(t, 1, store.Count())
	assert.Equal(t, 1, len(store.Snapshot().Lines))
}

func TestSameLineMutationsAreSerialized(t *testing.T) {
	ctx, store, shop := newStore(t)
	assert.NoError(t, store.Add(ctx, "42", 1))

	var inFlight, peak atomic.Int32
	var pendingDuringRequest atomic.Bool
	shop.OnRequest("updateCartItem", func(graphqltest.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			current := peak.Load()
			if n <= current || peak.CompareAndSwap(current, n) {
				break
			}
		}
		pendingDuringRequest.Store(store.IsPending("42"))
		time.Sleep(20 * time.Millisecond)
	})

	wg := errgroup.Group{}
	for quantity := 2; quantity <= 4; quantity++ {
		wg.Go(func() error { return store.SetQuantity(ctx, "42", quantity) })
	}
	assert.NoError(t, wg.Wait())

	assert.Equal(t, int32(1), peak.Load())
	assert.True(t, pendingDuringRequest.Load())
	assert.False(t, store.IsPending("42"))
	assert.Equal(t, []string{}, store.Pending())
	assert.Equal(t, shop.Quantity("42"), store.Count())
}

func TestSubscribe(t *testing.T) {
	ctx, store, _ := newStore(t)
	var lock sync.Mutex
	var states []State
	unsubscribe := store.Subscribe(func(state State) {
		lock.Lock()
		defer lock.Unlock()
		states = append(states, state)
	})

	assert.NoError(t, store.Add(ctx, "42", 2))
	lock.Lock()
	assert.True(t, len(states) >= 2)
	assert.Equal(t, []string{"42"}, states[0].Pending)
	last := states[len(states)-1]
	seen := len(states)
	lock.Unlock()
	assert.Equal(t, 2, last.Count)
	assert.Equal(t, []string{}, last.Pending)

	unsubscribe()
	assert.NoError(t, store.Add(ctx, "7", 1))
	lock.Lock()
	defer lock.Unlock()
	assert.Equal(t, seen, len(states))
}

func TestUpdatesTopic(t *testing.T) {
	ctx, store, _ := newStore(t)
	updates := store.Updates().Subscribe(make(chan State, 16))

	assert.NoError(t, store.Add(ctx, "9", 3))
	deadline := time.After(time.Second)
	for {
		select {
		case state := <-updates:
			if state.Count == 3 {
				assert.Equal(t, "95.97", state.Snapshot.Subtotal.StringFixed(2))
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for cart update")
		}
	}
}

func TestClear(t *testing.T) {
	ctx, store, shop := newStore(t)
	assert.NoError(t, store.Add(ctx, "42", 1))
	assert.NoError(t, store.Add(ctx, "7", 2))
	assert.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count())
	assert.True(t, store.Snapshot().Empty())
	assert.Equal(t, 0, shop.Quantity("7"))
}

func TestRejectedMutation(t *testing.T) {
	ctx := log.ContextWithNewDefaultLogger(context.Background())
	server := graphqltest.NewServer(t)
	server.Handle("removeFromCart", func(graphqltest.Request) (any, error) {
		return map[string]any{"success": false, "cart": nil}, nil
	})
	store := NewStore(server.Client(t))

	err := store.Remove(ctx, "42")
	assert.Equal(t, apierror.ValidationFailure, apierror.KindOf(err))
	assert.False(t, store.IsPending("42"))
}

func TestFetchCartDecodesLines(t *testing.T) {
	ctx, store, shop := newStore(t)
	assert.NoError(t, NewStore(shop.Client(t)).Add(ctx, "9", 1))

	assert.NoError(t, store.FetchCart(ctx))
	line, ok := store.Snapshot().Line("9")
	assert.True(t, ok)
	assert.Equal(t, "1", line.ID)
	assert.True(t, decimal.RequireFromString("31.99").Equal(line.UnitPriceSnapshot))
	assert.False(t, line.Product.ImageURL.Ok())
	assert.Equal(t, 1, store.Count())
}

func TestUsableAfterClose(t *testing.T) {
	ctx, store, _ := newStore(t)
	var seen atomic.Int32
	store.Subscribe(func(State) { seen.Add(1) })
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())

	assert.NoError(t, store.Add(ctx, "42", 1))
	assert.Equal(t, 1, store.Count())
	assert.True(t, seen.Load() > 0)
}
