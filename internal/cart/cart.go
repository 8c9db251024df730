// Package cart holds a buyer's unsubmitted selection. Totals computed here are
// for display only; the order the server returns is authoritative.
package cart

import (
	"context"
	"sync"

	"github.com/joao-fontenele/goodfood/internal/client"
	"github.com/joao-fontenele/goodfood/internal/domain"
)

var (
	ErrEmpty       = domain.Errorf(domain.ErrValidation, "cart is empty")
	errBadQuantity = domain.Errorf(domain.ErrValidation, "quantity must be at least 1")
)

// Placer submits an order. *client.Client satisfies it.
type Placer interface {
	CreateOrder(ctx context.Context, buyerID string, lines []client.OrderLine, total int64) (*domain.Order, error)
}

type Line struct {
	Item     domain.MenuItem
	Quantity int
}

func (l Line) Subtotal() int64 {
	return l.Item.Price * int64(l.Quantity)
}

// Cart is safe for concurrent use. Lines keep the order products were first added.
type Cart struct {
	mu    sync.Mutex
	order []string
	lines map[string]*Line
}

func New() *Cart {
	return &Cart{lines: make(map[string]*Line)}
}

// Add puts qty more of item in the cart, refreshing the stored snapshot.
func (c *Cart) Add(item domain.MenuItem, qty int) error {
	if qty < 1 {
		return errBadQuantity
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if l, ok := c.lines[item.ID]; ok {
		l.Item = item
		l.Quantity += qty
		return nil
	}
	c.lines[item.ID] = &Line{Item: item, Quantity: qty}
	c.order = append(c.order, item.ID)
	return nil
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(productID string, qty int) error {
	if qty < 0 {
		return errBadQuantity
	}
	if qty == 0 {
		c.Remove(productID)
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.lines[productID]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "product %s is not in the cart", productID)
	}
	l.Quantity = qty
	return nil
}

func (c *Cart) Remove(productID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(productID)
}

func (c *Cart) removeLocked(productID string) {
	if _, ok := c.lines[productID]; !ok {
		return
	}
	delete(c.lines, productID)
	for i, id := range c.order {
		if id == productID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.linesLocked()
}

func (c *Cart) linesLocked() []Line {
	lines := make([]Line, 0, len(c.order))
	for _, id := range c.order {
		lines = append(lines, *c.lines[id])
	}
	return lines
}

func (c *Cart) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.order)
}

func (c *Cart) Total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return total(c.linesLocked())
}

func total(lines []Line) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.Subtotal()
	}
	return sum
}

// BySeller groups lines by seller id, keeping first-appearance order inside
// each group.
func (c *Cart) BySeller() map[string][]Line {
	groups := make(map[string][]Line)
	for _, l := range c.Lines() {
		groups[l.Item.SellerID] = append(groups[l.Item.SellerID], l)
	}
	return groups
}

func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = nil
	c.lines = make(map[string]*Line)
}

// Checkout places the cart as one order for buyerID. Only what was submitted
// leaves the cart, and only once the order was accepted: quantity added while
// the request was in flight stays behind.
func (c *Cart) Checkout(ctx context.Context, placer Placer, buyerID string) (*domain.Order, error) {
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmpty
	}

	req := make([]client.OrderLine, 0, len(lines))
	for _, l := range lines {
		if l.Item.SellerID == "" {
			return nil, domain.Errorf(domain.ErrValidation, "product %s has no seller", l.Item.ID)
		}
		req = append(req, client.OrderLine{ProductID: l.Item.ID, Quantity: l.Quantity})
	}

	order, err := placer.CreateOrder(ctx, buyerID, req, total(lines))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range lines {
		current, ok := c.lines[l.Item.ID]
		if !ok {
			continue
		}
		if current.Quantity > l.Quantity {
			current.Quantity -= l.Quantity
			continue
		}
		c.removeLocked(l.Item.ID)
	}
	return order, nil
}
