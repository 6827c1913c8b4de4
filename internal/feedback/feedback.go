// Package feedback carries user-facing notifications out of the stores: the
// latest error and requests to confirm destructive actions.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alecthomas/types/pubsub"
	"golang.org/x/text/language"

	"github.com/block/storefront/internal/apierror"
	"github.com/block/storefront/internal/log"
)

var (
	// ErrNoConfirmer is returned by Confirm when nothing is serving
	// confirmation requests.
	ErrNoConfirmer = errors.New("no one is answering confirmation requests")
	// ErrClosed is returned by Confirm after Close.
	ErrClosed = errors.New("feedback channel is closed")
)

// Confirmation asks the user to approve a destructive action.
//
// Exactly one of Accept or Decline should be called. Later calls are ignored.
type Confirmation struct {
	Prompt string

	once  sync.Once
	reply chan bool
}

func (c *Confirmation) Accept()  { c.answer(true) }
func (c *Confirmation) Decline() { c.answer(false) }

func (c *Confirmation) answer(ok bool) {
	c.once.Do(func() {
		c.reply <- ok
		close(c.reply)
	})
}

// Channel is the error slot and confirmation queue shared by a view.
type Channel struct {
	locale        language.Tag
	lock          sync.Mutex
	err           error
	confirmers    int
	errors        *pubsub.Topic[error]
	confirmations *pubsub.Topic[*Confirmation]

	// publish guards both topics against Close.
	publish sync.RWMutex
	closed  bool
	done    chan struct{}
}

// New creates a Channel that renders messages in the given locale.
func New(locale language.Tag) *Channel {
	return &Channel{
		locale:        locale,
		errors:        pubsub.New[error](),
		confirmations: pubsub.New[*Confirmation](),
		done:          make(chan struct{}),
	}
}

// Report overwrites the error slot. A nil error clears it.
func (c *Channel) Report(ctx context.Context, err error) {
	c.lock.Lock()
	c.err = err
	c.lock.Unlock()
	if err != nil {
		log.FromContext(ctx).Scope("feedback").Warnf("%s", apierror.Classify(err))
	}
	c.publish.RLock()
	defer c.publish.RUnlock()
	if !c.closed {
		c.errors.Publish(err)
	}
}

// Clear empties the error slot.
func (c *Channel) Clear(ctx context.Context) { c.Report(ctx, nil) }

// Err returns the last reported error, if any.
func (c *Channel) Err() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.err
}

// Message is the localized form of Err, or "" when the slot is empty.
func (c *Channel) Message() string {
	return apierror.Localize(c.locale, c.Err())
}

// Errors publishes every change of the error slot, including clears.
func (c *Channel) Errors() *pubsub.Topic[error] { return c.errors }

// Serve passes every confirmation request to answer until ctx is cancelled
// or the channel is closed. answer must call Accept or Decline. Confirm fails
// with ErrNoConfirmer while nothing is serving.
func (c *Channel) Serve(ctx context.Context, answer func(*Confirmation)) {
	c.publish.RLock()
	if c.closed {
		c.publish.RUnlock()
		return
	}
	requests := c.confirmations.Subscribe(make(chan *Confirmation, 16))
	c.lock.Lock()
	c.confirmers++
	c.lock.Unlock()
	c.publish.RUnlock()

	go func() {
		defer func() {
			c.lock.Lock()
			c.confirmers--
			c.lock.Unlock()
			c.publish.RLock()
			defer c.publish.RUnlock()
			if !c.closed {
				c.confirmations.Unsubscribe(requests)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case request, ok := <-requests:
				if !ok {
					return
				}
				answer(request)
			}
		}
	}()
}

// Confirm publishes a confirmation request and waits for the answer.
func (c *Channel) Confirm(ctx context.Context, format string, args ...any) (bool, error) {
	confirmation := &Confirmation{Prompt: fmt.Sprintf(format, args...), reply: make(chan bool, 1)}
	if err := c.request(confirmation); err != nil {
		return false, fmt.Errorf("confirmation %q: %w", confirmation.Prompt, err)
	}
	select {
	case ok := <-confirmation.reply:
		return ok, nil
	case <-c.done:
		return false, fmt.Errorf("confirmation %q: %w", confirmation.Prompt, ErrClosed)
	case <-ctx.Done():
		return false, fmt.Errorf("confirmation %q abandoned: %w", confirmation.Prompt, context.Cause(ctx))
	}
}

func (c *Channel) request(confirmation *Confirmation) error {
	c.publish.RLock()
	defer c.publish.RUnlock()
	if c.closed {
		return ErrClosed
	}
	c.lock.Lock()
	confirmers := c.confirmers
	c.lock.Unlock()
	if confirmers == 0 {
		return ErrNoConfirmer
	}
	if err := c.confirmations.PublishSync(confirmation); err != nil {
		return fmt.Errorf("failed to request confirmation: %w", err)
	}
	return nil
}

// Close stops delivery to all subscribers. Later reports only update the
// error slot and later confirmations fail with ErrClosed.
func (c *Channel) Close() error {
	c.publish.Lock()
	defer c.publish.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if err := c.errors.Close(); err != nil {
		return fmt.Errorf("failed to close error topic: %w", err)
	}
	if err := c.confirmations.Close(); err != nil {
		return fmt.Errorf("failed to close confirmation topic: %w", err)
	}
	return nil
}

// AutoConfirm answers every confirmation request with the given answer until
// ctx is cancelled or the channel is closed. Non-interactive callers use it in
// place of a prompt.
func AutoConfirm(ctx context.Context, c *Channel, answer bool) {
	c.Serve(ctx, func(request *Confirmation) {
		log.FromContext(ctx).Scope("feedback").Debugf("auto-answering %q with %t", request.Prompt, answer)
		request.answer(answer)
	})
}
