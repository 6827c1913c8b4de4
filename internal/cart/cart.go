// Package cart keeps a client-side copy of the server-authoritative cart.
//
// The server is the source of truth: every successful response replaces the
// local snapshot wholesale and nothing is ever patched or recomputed locally.
package cart

import (
	"github.com/alecthomas/types/optional"
	"github.com/shopspring/decimal"
)

// ProductRef is the product summary embedded in a cart line.
type ProductRef struct {
	ID       string
	Name     string
	ImageURL optional.Option[string]
	Price    decimal.Decimal
}

// Line is one product in the cart.
type Line struct {
	ID                string
	ProductID         string
	Quantity          int
	UnitPriceSnapshot decimal.Decimal
	LineTotal         decimal.Decimal
	Product           ProductRef
}

// Snapshot is the cart as last reported by the server.
type Snapshot struct {
	Lines    []Line
	Subtotal decimal.Decimal
}

// Count is the total quantity across all lines.
func (s Snapshot) Count() int {
	n := 0
	for _, line := range s.Lines {
		n += line.Quantity
	}
	return n
}

// Line returns the line for a product.
func (s Snapshot) Line(productID string) (Line, bool) {
	for _, line := range s.Lines {
		if line.ProductID == productID {
			return line, true
		}
	}
	return Line{}, false
}

// Empty reports whether the cart has no lines.
func (s Snapshot) Empty() bool { return len(s.Lines) == 0 }

func (s Snapshot) clone() Snapshot {
	s.Lines = append([]Line(nil), s.Lines...)
	return s
}

// State is what subscribers observe after every change.
type State struct {
	Snapshot Snapshot
	// Count may be known before the full cart has been fetched.
	Count int
	// Pending holds the product IDs with a mutation in flight, sorted.
	Pending []string
}

type wireProduct struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	ImageURL *string         `json:"imageUrl"`
	Price    decimal.Decimal `json:"price"`
}

type wireLine struct {
	ID                string          `json:"id"`
	Quantity          int             `json:"quantity"`
	UnitPriceSnapshot decimal.Decimal `json:"unitPriceSnapshot"`
	LineTotal         decimal.Decimal `json:"lineTotal"`
	Product           wireProduct     `json:"product"`
}

type wireCart struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Items    []wireLine      `json:"items"`
}

type mutationPayload struct {
	Success bool      `json:"success"`
	Cart    *wireCart `json:"cart"`
}

func (w *wireCart) snapshot() Snapshot {
	if w == nil {
		return Snapshot{}
	}
	out := Snapshot{Subtotal: w.Subtotal, Lines: make([]Line, 0, len(w.Items))}
	for _, item := range w.Items {
		out.Lines = append(out.Lines, Line{
			ID:                item.ID,
			ProductID:         item.Product.ID,
			Quantity:          item.Quantity,
			UnitPriceSnapshot: item.UnitPriceSnapshot,
			LineTotal:         item.LineTotal,
			Product: ProductRef{
				ID:       item.Product.ID,
				Name:     item.Product.Name,
				ImageURL: optional.Ptr(item.Product.ImageURL),
				Price:    item.Product.Price,
			},
		})
	}
	return out
}
