package orders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	seq    int
	err    error
}

func newMemRepo() *memRepo {
	return &memRepo{orders: make(map[string]domain.Order)}
}

func clone(o domain.Order) domain.Order {
	o.Items = append([]domain.LineItem(nil), o.Items...)
	return o
}

func (m *memRepo) Create(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	order.ID = fmt.Sprintf("order-%d", m.seq)
	order.Version = 1
	m.orders[order.ID] = clone(*order)
	return nil
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	o = clone(o)
	return &o, nil
}

func (m *memRepo) Update(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.orders[order.ID]
	if !ok || stored.Version != order.Version {
		return domain.ErrStaleWrite
	}
	order.Version++
	stored.Status = order.Status
	stored.ReceivedAt = order.ReceivedAt
	stored.DeliveredAt = order.DeliveredAt
	stored.DeliveryEstimate = order.DeliveryEstimate
	stored.Version = order.Version
	m.orders[order.ID] = stored
	return nil
}

func (m *memRepo) sorted(keep func(domain.Order) bool) []domain.Order {
	var out []domain.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memRepo) ListForBuyer(_ context.Context, buyerID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(o domain.Order) bool { return o.BuyerID == buyerID }), nil
}

func (m *memRepo) ListForSeller(_ context.Context, sellerID string) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.sorted(func(o domain.Order) bool { return o.HasSeller(sellerID) }), nil
}

func (m *memRepo) CountUnviewed(_ context.Context, sellerID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, o := range m.orders {
		if !o.IsViewed && o.HasSeller(sellerID) {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) MarkViewed(_ context.Context, sellerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, o := range m.orders {
		if !o.IsViewed && o.HasSeller(sellerID) {
			o.IsViewed = true
			m.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (m *memRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// setStatus edits a stored order directly, bypassing the engine.
func (m *memRepo) setStatus(id string, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[id]
	o.Status = status
	m.orders[id] = o
}

type menuProducts map[string]domain.MenuItem

func (p menuProducts) GetMany(_ context.Context, ids []string) (map[string]domain.MenuItem, error) {
	found := make(map[string]domain.MenuItem)
	for _, id := range ids {
		if item, ok := p[id]; ok {
			found[id] = item
		}
	}
	return found, nil
}

type call struct {
	sellerID string
	orderID  string
}

type recordingSink struct {
	calls []call
	fail  map[string]bool
}

func (s *recordingSink) Notify(_ context.Context, sellerID, orderID string) error {
	s.calls = append(s.calls, call{sellerID, orderID})
	if s.fail[sellerID] {
		return errors.New("sink unavailable")
	}
	return nil
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }
