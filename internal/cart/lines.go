package cart

import (
	"context"
	"fmt"
)

// Lines applies the cart-line widget's quantity policy on top of a Store: a
// target quantity of zero or less removes the line rather than sending it.
type Lines struct {
	store *Store
}

func NewLines(store *Store) Lines { return Lines{store: store} }

// Increment adds one unit of the product.
func (l Lines) Increment(ctx context.Context, productID string) error {
	return l.store.Add(ctx, productID, 1)
}

// Decrement removes one unit of the product, removing the line when it
// reaches zero.
func (l Lines) Decrement(ctx context.Context, productID string) error {
	line, ok := l.store.Snapshot().Line(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLine, productID)
	}
	return l.Set(ctx, productID, line.Quantity-1)
}

// Set moves the line to the given quantity.
func (l Lines) Set(ctx context.Context, productID string, quantity int) error {
	if quantity <= 0 {
		return l.store.Remove(ctx, productID)
	}
	return l.store.SetQuantity(ctx, productID, quantity)
}
