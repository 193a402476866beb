// Package cart models the customer cart as an explicit value: pure operations
// over an immutable line slice, persisted per session in Redis. Callers get a
// new slice back from every operation; nothing mutates in place.
package cart

import (
	"github.com/dineflow/tableorder/internal/orders"
)

// Add merges a line into the cart. Adding an item already present bumps its
// quantity; the snapshot (name, price) of the first add wins.
func Add(lines []orders.Line, l orders.Line) []orders.Line {
	out := make([]orders.Line, len(lines))
	copy(out, lines)
	for i := range out {
		if out[i].ItemID == l.ItemID {
			out[i].Qty += l.Qty
			return out
		}
	}
	return append(out, l)
}

func Remove(lines []orders.Line, itemID string) []orders.Line {
	out := make([]orders.Line, 0, len(lines))
	for _, l := range lines {
		if l.ItemID != itemID {
			out = append(out, l)
		}
	}
	return out
}

func Total(lines []orders.Line) float64 {
	return orders.Total(lines)
}
