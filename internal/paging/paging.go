// Package paging accumulates offset/limit pages into a growing list for
// "load more" style views.
package paging

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alecthomas/types/optional"
	"github.com/alecthomas/types/pubsub"

	"github.com/block/storefront/internal/log"
)

// DefaultPageSize matches the storefront product list.
const DefaultPageSize = 50

// State of an Accumulator.
type State int

const (
	Idle State = iota
	LoadingInitial
	LoadingMore
	Loaded
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case LoadingInitial:
		return "loading"
	case LoadingMore:
		return "loading-more"
	case Loaded:
		return "loaded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Loading reports whether a request is in flight.
func (s State) Loading() bool { return s == LoadingInitial || s == LoadingMore }

// Page is one page of results. Total is set when the server reports the
// exact number of matching items.
type Page[T any] struct {
	Items []T
	Total optional.Option[int]
}

// Fetcher loads one page of items matching filters.
type Fetcher[T any, F comparable] func(ctx context.Context, filters F, offset, limit int) (Page[T], error)

// Window tracks how far into the result set a view has loaded.
type Window struct {
	PageSize    int
	CurrentPage int
	HasMore     bool
}

// Offset of the next page.
func (w Window) Offset() int { return w.CurrentPage * w.PageSize }

// View is a point-in-time copy of an Accumulator.
type View[T any, F comparable] struct {
	Items   []T
	Filters F
	Window  Window
	State   State
	Err     error
}

// Accumulator loads pages for one list view.
//
// Load replaces the list with the first page for a set of filters; LoadMore
// appends the next page. A Load issued while another request is in flight
// supersedes it, and the superseded response is dropped.
type Accumulator[T any, F comparable] struct {
	name    string
	fetch   Fetcher[T, F]
	updates *pubsub.Topic[View[T, F]]

	// publish guards updates against Close.
	publish sync.RWMutex
	closed  bool

	lock       sync.Mutex
	items      []T
	filters    F
	window     Window
	state      State
	err        error
	generation uint64
	listeners  map[int]func(View[T, F])
	nextID     int
}

// New creates an Accumulator. name is used for logging.
func New[T any, F comparable](name string, pageSize int, fetch Fetcher[T, F]) *Accumulator[T, F] {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Accumulator[T, F]{
		name:      name,
		fetch:     fetch,
		updates:   pubsub.New[View[T, F]](),
		window:    Window{PageSize: pageSize},
		listeners: map[int]func(View[T, F]){},
	}
}

// Load fetches the first page for filters, replacing the current items.
func (a *Accumulator[T, F]) Load(ctx context.Context, filters F) error {
	a.lock.Lock()
	a.generation++
	generation := a.generation
	a.filters = filters
	a.state = LoadingInitial
	a.err = nil
	limit := a.window.PageSize
	a.lock.Unlock()
	a.notify()

	page, err := a.run(ctx, generation, filters, 0, limit)
	if err != nil {
		a.settle(generation, func() {
			a.items = nil
			a.window.CurrentPage = 0
			a.window.HasMore = false
			a.state = Idle
			a.err = err
		})
		return err
	}
	a.settle(generation, func() {
		a.items = append([]T(nil), page.Items...)
		a.window.CurrentPage = 1
		a.window.HasMore = hasMore(page, len(a.items), limit)
	})
	return nil
}

// Reload repeats the last Load with the same filters.
func (a *Accumulator[T, F]) Reload(ctx context.Context) error {
	a.lock.Lock()
	filters := a.filters
	a.lock.Unlock()
	return a.Load(ctx, filters)
}

// LoadMore appends the next page. It does nothing when there is nothing more
// to load or a request is already in flight.
func (a *Accumulator[T, F]) LoadMore(ctx context.Context) error {
	a.lock.Lock()
	if !a.window.HasMore || a.state.Loading() {
		a.lock.Unlock()
		return nil
	}
	generation := a.generation
	filters := a.filters
	offset, limit := a.window.Offset(), a.window.PageSize
	a.state = LoadingMore
	a.err = nil
	a.lock.Unlock()
	a.notify()

	page, err := a.run(ctx, generation, filters, offset, limit)
	if err != nil {
		a.settle(generation, func() { a.err = err })
		return err
	}
	a.settle(generation, func() {
		a.items = append(a.items, page.Items...)
		a.window.CurrentPage++
		a.window.HasMore = hasMore(page, len(a.items), limit)
	})
	return nil
}

// run calls the fetcher, releasing the loading state if it panics.
func (a *Accumulator[T, F]) run(ctx context.Context, generation uint64, filters F, offset, limit int) (page Page[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			a.settle(generation, func() { a.err = fmt.Errorf("%s: fetch panicked: %v", a.name, r) })
			panic(r)
		}
	}()
	log.FromContext(ctx).Scope(a.name).Debugf("fetching offset=%d limit=%d", offset, limit)
	page, err = a.fetch(ctx, filters, offset, limit)
	if err != nil {
		return page, fmt.Errorf("%s: %w", a.name, err)
	}
	return page, nil
}

// settle applies the result of a request if it has not been superseded and
// clears the loading state.
func (a *Accumulator[T, F]) settle(generation uint64, apply func()) {
	a.lock.Lock()
	if generation != a.generation {
		a.lock.Unlock()
		return
	}
	a.state = Loaded
	apply()
	a.lock.Unlock()
	a.notify()
}

func hasMore[T any](page Page[T], loaded, pageSize int) bool {
	if total, ok := page.Total.Get(); ok {
		return loaded < total
	}
	return len(page.Items) == pageSize
}

// View returns a copy of the current state.
func (a *Accumulator[T, F]) View() View[T, F] {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.view()
}

func (a *Accumulator[T, F]) view() View[T, F] {
	return View[T, F]{
		Items:   append([]T(nil), a.items...),
		Filters: a.filters,
		Window:  a.window,
		State:   a.state,
		Err:     a.err,
	}
}

// Items returns a copy of the loaded items.
func (a *Accumulator[T, F]) Items() []T { return a.View().Items }

// HasMore reports whether LoadMore would fetch another page.
func (a *Accumulator[T, F]) HasMore() bool {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.window.HasMore
}

// Err is the most recent failure, cleared when the next request starts.
func (a *Accumulator[T, F]) Err() error {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.err
}

// Subscribe registers a listener called after every state change.
func (a *Accumulator[T, F]) Subscribe(listener func(View[T, F])) (unsubscribe func()) {
	a.lock.Lock()
	defer a.lock.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = listener
	return func() {
		a.lock.Lock()
		defer a.lock.Unlock()
		delete(a.listeners, id)
	}
}

// Updates publishes every state change for channel consumers.
func (a *Accumulator[T, F]) Updates() *pubsub.Topic[View[T, F]] { return a.updates }

// Close stops publishing to Updates. The accumulator stays usable and
// Subscribe listeners are still called.
func (a *Accumulator[T, F]) Close() error {
	a.publish.Lock()
	defer a.publish.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.updates.Close()
}

func (a *Accumulator[T, F]) notify() {
	a.lock.Lock()
	view := a.view()
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(View[T, F]), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, a.listeners[id])
	}
	a.lock.Unlock()
	for _, listener := range listeners {
		listener(view)
	}
	a.publish.RLock()
	defer a.publish.RUnlock()
	if !a.closed {
		a.updates.Publish(view)
	}
}
