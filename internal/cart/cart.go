// Package cart holds the in-memory line item collection behind the cart store.
// It has no persistence of its own; see service.CartService.
package cart

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/storybook-api/internal/model"
)

var ErrNilItem = errors.New("cart item is nil")

type Cart struct {
	items []model.CartItem
	now   func() time.Time
}

// New returns a cart holding a copy of items.
func New(items []model.CartItem) *Cart {
	c := &Cart{now: time.Now}
	c.items = append(c.items, items...)
	return c
}

// Add inserts item with quantity 1. Re-adding a known id replaces book items
// wholesale and increments anything else.
func (c *Cart) Add(item *model.CartItem) error {
	if item == nil {
		return ErrNilItem
	}
	next := *item
	if next.ID == "" {
		next.ID = uuid.NewString()
	}

	if i := c.index(next.ID); i >= 0 {
		if next.IsBook() {
			next.Quantity = 1
			next.DateAdded = c.now().UTC()
			c.items[i] = next
			return nil
		}
		c.items[i].Quantity = c.items[i].EffectiveQuantity() + 1
		return nil
	}

	next.Quantity = 1
	if next.DateAdded.IsZero() {
		next.DateAdded = c.now().UTC()
	}
	c.items = append(c.items, next)
	return nil
}

// Remove deletes the item with id. It reports whether anything was removed.
func (c *Cart) Remove(id string) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

// UpdateQuantity overwrites the quantity of id, clamped to a minimum of 1.
func (c *Cart) UpdateQuantity(id string, qty int) bool {
	i := c.index(id)
	if i < 0 {
		return false
	}
	if qty < 1 {
		qty = 1
	}
	c.items[i].Quantity = qty
	return true
}

func (c *Cart) Clear() { c.items = nil }

func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range c.items {
		total = total.Add(it.LineTotal())
	}
	return total
}

func (c *Cart) ItemCount() int {
	n := 0
	for _, it := range c.items {
		n += it.EffectiveQuantity()
	}
	return n
}

// Items returns a copy of the current line items.
func (c *Cart) Items() []model.CartItem {
	out := make([]model.CartItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int { return len(c.items) }

func (c *Cart) index(id string) int {
	for i := range c.items {
		if c.items[i].ID == id {
			return i
		}
	}
	return -1
}
