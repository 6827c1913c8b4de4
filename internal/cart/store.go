package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alecthomas/atomic"
	"github.com/alecthomas/types/pubsub"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/graphql"
	"github.com/block/storefront/internal/log"
)

var (
	// ErrNonPositiveQuantity is returned by SetQuantity for quantities <= 0.
	// Callers remove the line instead.
	ErrNonPositiveQuantity = errors.New("quantity must be positive")
	// ErrUnknownLine is returned when a line operation targets a product that
	// is not in the current snapshot.
	ErrUnknownLine = errors.New("product is not in the cart")
)

// Store owns the local cart state.
//
// All methods are safe for concurrent use. Mutations for the same product are
// serialized in arrival order; mutations for different products run
// concurrently and the newest response wins.
type Store struct {
	client      graphql.Executor
	snapshot    atomic.Value[Snapshot]
	count       atomic.Value[int]
	countLoaded atomic.Value[bool]
	pending     mapset.Set[string]
	lineLocks   *xsync.MapOf[string, *lineLock]
	flight      singleflight.Group
	updates     *pubsub.Topic[State]

	// apply serializes state replacement, listener notification and Close.
	apply sync.Mutex

	lock sync.Mutex
	// sequence and applied order full snapshot responses.
	sequence uint64
	applied  uint64
	// countSequence and countApplied order count-only responses, which never
	// make a snapshot response stale.
	countSequence uint64
	countApplied  uint64
	closed        bool
	listeners     map[int]func(State)
	nextID        int
}

// NewStore creates an empty store.
func NewStore(client graphql.Executor) *Store {
	return &Store{
		client:    client,
		pending:   mapset.NewSet[string](),
		lineLocks: xsync.NewMapOf[string, *lineLock](),
		updates:   pubsub.New[State](),
		listeners: map[int]func(State){},
	}
}

// Snapshot returns a copy of the current cart.
func (s *Store) Snapshot() Snapshot { return s.snapshot.Load().clone() }

// Count returns the current item count.
func (s *Store) Count() int { return s.count.Load() }

// IsPending reports whether a mutation for the product is in flight.
func (s *Store) IsPending(productID string) bool { return s.pending.Contains(productID) }

// Pending returns the product IDs with a mutation in flight.
func (s *Store) Pending() []string {
	out := s.pending.ToSlice()
	sort.Strings(out)
	return out
}

// State returns the current observable state.
func (s *Store) State() State {
	return State{Snapshot: s.Snapshot(), Count: s.Count(), Pending: s.Pending()}
}

// Subscribe registers a listener called synchronously after every change.
// Listeners must not block or call back into mutating methods.
func (s *Store) Subscribe(listener func(State)) (unsubscribe func()) {
	s.lock.Lock()
	defer s.lock.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return func() {
		s.lock.Lock()
		defer s.lock.Unlock()
		delete(s.listeners, id)
	}
}

// Updates publishes every state change for channel consumers.
func (s *Store) Updates() *pubsub.Topic[State] { return s.updates }

// Close stops publishing to Updates. The store stays usable and Subscribe
// listeners are still called.
func (s *Store) Close() error {
	s.apply.Lock()
	defer s.apply.Unlock()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.updates.Close()
}

// RefreshCount fetches only the item count.
//
// A count response is dropped when a full snapshot has been applied since the
// request was issued, so the count always agrees with the latest snapshot.
func (s *Store) RefreshCount(ctx context.Context) error {
	seq, base := s.nextCountSequence()
	result, err := graphql.QueryInto[struct {
		CartSummary struct {
			Count int `json:"count"`
		} `json:"cartSummary"`
	}](ctx, s.client, countQuery, nil)
	if err != nil {
		return fmt.Errorf("failed to refresh cart count: %w", err)
	}
	s.commitCount(ctx, seq, base, result.CartSummary.Count)
	return nil
}

// LoadCountOnce refreshes the count unless it is already known. Concurrent
// callers share a single request. A failure leaves the count unknown so a
// later call retries.
func (s *Store) LoadCountOnce(ctx context.Context) error {
	if s.countLoaded.Load() {
		return nil
	}
	_, err, _ := s.flight.Do("count", func() (any, error) {
		if s.countLoaded.Load() {
			return nil, nil
		}
		return nil, s.RefreshCount(ctx)
	})
	return err
}

// FetchCart fetches the full cart.
func (s *Store) FetchCart(ctx context.Context) error {
	seq := s.nextSequence()
	result, err := graphql.QueryInto[struct {
		Cart *wireCart `json:"cart"`
	}](ctx, s.client, cartQuery, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch cart: %w", err)
	}
	s.replace(ctx, seq, "cart", result.Cart.snapshot())
	return nil
}

// Add adds quantity units of a product. The server accumulates quantities for
// products already in the cart.
func (s *Store) Add(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return ErrNonPositiveQuantity
	}
	return s.mutateLine(ctx, productID, "addToCart", addMutation, graphql.Variables{
		"productId": graphql.ID(productID),
		"quantity":  graphql.Int(quantity),
	})
}

// SetQuantity sets the quantity of a line. Quantities <= 0 are rejected
// without a request.
func (s *Store) SetQuantity(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveQuantity, quantity)
	}
	return s.mutateLine(ctx, productID, "updateCartItem", updateMutation, graphql.Variables{
		"productId": graphql.ID(productID),
		"quantity":  graphql.Int(quantity),
	})
}

// Remove deletes a line.
func (s *Store) Remove(ctx context.Context, productID string) error {
	return s.mutateLine(ctx, productID, "removeFromCart", removeMutation, graphql.Variables{
		"productId": graphql.ID(productID),
	})
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	return s.mutate(ctx, "clearCart", clearMutation, nil)
}

func (s *Store) mutateLine(ctx context.Context, productID, field, query string, vars graphql.Variables) error {
	lock, _ := s.lineLocks.LoadOrCompute(productID, newLineLock)
	s.markPending(productID)
	defer s.unmarkPending(productID)
	if err := lock.acquire(ctx); err != nil {
		return fmt.Errorf("%s %s: %w", field, productID, err)
	}
	defer lock.release()
	return s.mutate(ctx, field, query, vars)
}

func (s *Store) mutate(ctx context.Context, field, query string, vars graphql.Variables) error {
	seq := s.nextSequence()
	result, err := graphql.MutateInto[map[string]*mutationPayload](ctx, s.client, query, vars)
	if err != nil {
		return fmt.Errorf("%s failed: %w", field, err)
	}
	payload := result[field]
	if payload == nil {
		return fmt.Errorf("%s failed: %w", field, graphql.ErrMalformedResponse)
	}
	if err := apierror.CheckSuccess(payload.Success, field); err != nil {
		return err
	}
	s.replace(ctx, seq, field, payload.Cart.snapshot())
	return nil
}

// replace applies a full snapshot unless a newer one has already been
// applied. The count is always re-derived from the snapshot.
func (s *Store) replace(ctx context.Context, seq uint64, source string, snapshot Snapshot) {
	s.apply.Lock()
	defer s.apply.Unlock()
	s.lock.Lock()
	if seq < s.applied {
		s.lock.Unlock()
		log.FromContext(ctx).Scope("cart").Debugf("discarding stale %s response (seq %d < %d)", source, seq, s.applied)
		return
	}
	s.applied = seq
	s.lock.Unlock()
	s.snapshot.Store(snapshot)
	s.count.Store(snapshot.Count())
	s.countLoaded.Store(true)
	s.notify()
}

// commitCount applies a count-only response issued when the last applied
// snapshot was base.
func (s *Store) commitCount(ctx context.Context, seq, base uint64, count int) {
	s.apply.Lock()
	defer s.apply.Unlock()
	s.lock.Lock()
	if seq < s.countApplied || s.applied > base {
		s.lock.Unlock()
		log.FromContext(ctx).Scope("cart").Debugf("discarding stale cartSummary response (seq %d)", seq)
		return
	}
	s.countApplied = seq
	s.lock.Unlock()
	s.count.Store(count)
	s.countLoaded.Store(true)
	s.notify()
}

func (s *Store) nextSequence() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.sequence++
	return s.sequence
}

// nextCountSequence also returns the sequence of the last applied snapshot.
func (s *Store) nextCountSequence() (seq, base uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.countSequence++
	return s.countSequence, s.applied
}

func (s *Store) markPending(productID string) {
	lock, _ := s.lineLocks.LoadOrCompute(productID, newLineLock)
	s.lock.Lock()
	lock.waiters++
	first := lock.waiters == 1
	if first {
		s.pending.Add(productID)
	}
	s.lock.Unlock()
	if first {
		s.notifyPending()
	}
}

func (s *Store) unmarkPending(productID string) {
	lock, _ := s.lineLocks.Load(productID)
	s.lock.Lock()
	lock.waiters--
	last := lock.waiters == 0
	if last {
		s.pending.Remove(productID)
	}
	s.lock.Unlock()
	if last {
		s.notifyPending()
	}
}

func (s *Store) notifyPending() {
	s.apply.Lock()
	defer s.apply.Unlock()
	s.notify()
}

// notify must be called with s.apply held.
func (s *Store) notify() {
	state := s.State()
	s.lock.Lock()
	closed := s.closed
	listeners := make([]func(State), 0, len(s.listeners))
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.lock.Unlock()
	for _, listener := range listeners {
		listener(state)
	}
	if !closed {
		s.updates.Publish(state)
	}
}

// lineLock is a FIFO mutex for one product's mutations.
type lineLock struct {
	sem     chan struct{}
	waiters int // guarded by Store.lock
}

func newLineLock() *lineLock { return &lineLock{sem: make(chan struct{}, 1)} }

func (l *lineLock) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

func (l *lineLock) release() { <-l.sem }
