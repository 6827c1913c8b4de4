package paging

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultDebounce is the quiet period used for search-as-you-type.
const DefaultDebounce = 500 * time.Millisecond

// Debouncer delivers a value only once it has stopped changing for the quiet
// period. Values superseded within the period are never delivered.
type Debouncer[V any] struct {
	clock  clock.Clock
	delay  time.Duration
	commit func(V)

	lock    sync.Mutex
	timer   *clock.Timer
	latest  uint64
	stopped bool
}

// NewDebouncer creates a Debouncer. A zero delay uses DefaultDebounce.
func NewDebouncer[V any](clk clock.Clock, delay time.Duration, commit func(V)) *Debouncer[V] {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer[V]{clock: clk, delay: delay, commit: commit}
}

// Push records a new value, restarting the quiet period.
func (d *Debouncer[V]) Push(value V) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.stopped {
		return
	}
	d.latest++
	seq := d.latest
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.lock.Lock()
		current := seq == d.latest && !d.stopped
		d.lock.Unlock()
		if current {
			d.commit(value)
		}
	})
}

// Stop discards any pending value. Later pushes are ignored.
func (d *Debouncer[V]) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
