package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/notify"
)

const (
	DefaultCancelWindow = time.Minute
	topItemsLimit       = 5
)

var errOrderNotFound = domain.Errorf(domain.ErrNotFound, "order not found")

// Repository persists orders. Get returns nil, nil for an unknown id. Update
// writes status, timestamps and delivery estimate only if the stored version
// still equals order.Version, then bumps it; otherwise it returns
// domain.ErrStaleWrite.
type Repository interface {
	Create(ctx context.Context, order *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	Update(ctx context.Context, order *domain.Order) error
	ListForBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListForSeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	CountUnviewed(ctx context.Context, sellerID string) (int, error)
	MarkViewed(ctx context.Context, sellerID string) (int64, error)
}

// ProductResolver returns the menu items found among ids, keyed by id.
type ProductResolver interface {
	GetMany(ctx context.Context, ids []string) (map[string]domain.MenuItem, error)
}

type CartLine struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

type Service struct {
	repo         Repository
	products     ProductResolver
	sink         notify.Sink
	logger       *slog.Logger
	now          func() time.Time
	cancelWindow time.Duration

	created       metric.Int64Counter
	transitions   metric.Int64Counter
	notifyFailure metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithCancelWindow(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cancelWindow = d
		}
	}
}

func NewService(repo Repository, products ProductResolver, sink notify.Sink, logger *slog.Logger, opts ...Option) *Service {
	if sink == nil {
		sink = notify.Noop{}
	}
	s := &Service{
		repo:         repo,
		products:     products,
		sink:         sink,
		logger:       logger,
		now:          time.Now,
		cancelWindow: DefaultCancelWindow,
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter("goodfood/orders")
	s.created = s.counter(meter, "goodfood.orders.created", "Orders placed, including reorders")
	s.transitions = s.counter(meter, "goodfood.orders.transitions", "Order status changes by target status")
	s.notifyFailure = s.counter(meter, "goodfood.notifications.failed", "Seller notifications that could not be delivered")
	return s
}

func (s *Service) counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		s.logger.Warn("failed to create counter", "name", name, "error", err)
		return noop.Int64Counter{}
	}
	return c
}

// Create places an order for buyerID. Names, prices and sellers are copied
// from the menu; clientTotal is only compared against the computed total.
func (s *Service) Create(ctx context.Context, buyerID string, lines []CartLine, clientTotal int64) (*domain.Order, error) {
	if buyerID == "" {
		return nil, domain.Errorf(domain.ErrValidation, "buyerId is required")
	}
	if len(lines) == 0 {
		return nil, domain.Errorf(domain.ErrValidation, "order must contain at least one item")
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return nil, domain.Errorf(domain.ErrValidation, "productId is required")
		}
		if line.Quantity < 1 {
			return nil, domain.Errorf(domain.ErrValidation, "quantity must be at least 1")
		}
		ids = append(ids, line.ProductID)
	}

	products, err := s.products.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve products: %w", err)
	}

	items := make([]domain.LineItem, 0, len(lines))
	for _, line := range lines {
		p, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("product %s: %w", line.ProductID, domain.ErrProductsNotFound)
		}
		items = append(items, domain.LineItem{
			ProductID: p.ID,
			SellerID:  p.SellerID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  line.Quantity,
			Category:  string(p.Category),
		})
	}

	order := s.newPending(buyerID, items, domain.LineItemsTotal(items))
	if clientTotal != 0 && clientTotal != order.Total {
		s.logger.Warn("client total differs from computed total",
			"buyer_id", buyerID, "client_total", clientTotal, "total", order.Total)
	}

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	s.placed(ctx, order)
	return order, nil
}

// Reorder places a new Pending order with the source order's lines and total
// as they were stored. An empty buyerID keeps the source order's buyer.
func (s *Service) Reorder(ctx context.Context, orderID, buyerID string) (*domain.Order, error) {
	src, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if buyerID == "" {
		buyerID = src.BuyerID
	}

	items := make([]domain.LineItem, len(src.Items))
	copy(items, src.Items)

	order := s.newPending(buyerID, items, src.Total)
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create reorder of %s: %w", orderID, err)
	}
	s.placed(ctx, order)
	return order, nil
}

func (s *Service) newPending(buyerID string, items []domain.LineItem, total int64) *domain.Order {
	return &domain.Order{
		BuyerID:   buyerID,
		Items:     items,
		Total:     total,
		Status:    domain.OrderStatusPending,
		CreatedAt: s.now().UTC(),
		IsViewed:  false,
	}
}

func (s *Service) placed(ctx context.Context, order *domain.Order) {
	s.created.Add(ctx, 1)
	s.logger.Info("order created", "order_id", order.ID, "buyer_id", order.BuyerID, "total", order.Total)
	s.notifySellers(context.WithoutCancel(ctx), order)
}

func (s *Service) notifySellers(ctx context.Context, order *domain.Order) {
	for _, sellerID := range order.SellerIDs() {
		if err := s.sink.Notify(ctx, sellerID, order.ID); err != nil {
			s.notifyFailure.Add(ctx, 1)
			s.logger.Warn("failed to notify seller", "error", err, "seller_id", sellerID, "order_id", order.ID)
		}
	}
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, errOrderNotFound
	}
	return order, nil
}

// SetStatus moves an order to Received or Delivered. at defaults to now.
func (s *Service) SetStatus(ctx context.Context, orderID string, status domain.OrderStatus, at *time.Time) (*domain.Order, error) {
	if status != domain.OrderStatusReceived && status != domain.OrderStatusDelivered {
		return nil, domain.Errorf(domain.ErrValidation, "status must be %s or %s", domain.OrderStatusReceived, domain.OrderStatusDelivered)
	}

	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, domain.Errorf(domain.ErrConflict, "cannot change order status from %s to %s", order.Status, status)
	}

	stamp := s.now().UTC()
	if at != nil {
		stamp = at.UTC()
	}
	order.Status = status
	switch status {
	case domain.OrderStatusReceived:
		order.ReceivedAt = &stamp
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &stamp
	}

	return s.update(ctx, order)
}

// Cancel is only possible while the order is Pending and within the cancel
// window, bounds included.
func (s *Service) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusPending {
		return nil, domain.Errorf(domain.ErrConflict, "order is already %s", order.Status)
	}
	if s.now().Sub(order.CreatedAt) > s.cancelWindow {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, domain.ErrCancelWindowElapsed)
	}

	order.Status = domain.OrderStatusCanceled
	return s.update(ctx, order)
}

// SetDeliveryEstimate overwrites any previous estimate.
func (s *Service) SetDeliveryEstimate(ctx context.Context, orderID string, at time.Time) (*domain.Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	est := at.UTC()
	order.DeliveryEstimate = &est
	return s.persist(ctx, order)
}

// ExtendDeliveryEstimate pushes the current estimate, or now when none is
// set, by d.
func (s *Service) ExtendDeliveryEstimate(ctx context.Context, orderID string, d time.Duration) (*domain.Order, error) {
	if d <= 0 {
		return nil, domain.Errorf(domain.ErrValidation, "extension must be positive")
	}
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	base := s.now().UTC()
	if order.DeliveryEstimate != nil {
		base = *order.DeliveryEstimate
	}
	est := base.Add(d)
	order.DeliveryEstimate = &est
	return s.persist(ctx, order)
}

func (s *Service) update(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	updated, err := s.persist(ctx, order)
	if err != nil {
		return nil, err
	}
	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(order.Status))))
	s.logger.Info("order status updated", "order_id", order.ID, "status", order.Status)
	return updated, nil
}

func (s *Service) persist(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("update order %s: %w", order.ID, err)
	}
	return order, nil
}

func (s *Service) ListForBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	orders, err := s.repo.ListForBuyer(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list buyer orders: %w", err)
	}
	return orders, nil
}

// ListForSeller returns every order with at least one of the seller's items,
// each with its full item list.
func (s *Service) ListForSeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	orders, err := s.repo.ListForSeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("list seller orders: %w", err)
	}
	return orders, nil
}

func (s *Service) NewOrderCount(ctx context.Context, sellerID string) (int, error) {
	n, err := s.repo.CountUnviewed(ctx, sellerID)
	if err != nil {
		return 0, fmt.Errorf("count unviewed orders: %w", err)
	}
	return n, nil
}

func (s *Service) MarkViewed(ctx context.Context, sellerID string) error {
	n, err := s.repo.MarkViewed(ctx, sellerID)
	if err != nil {
		return fmt.Errorf("mark orders viewed: %w", err)
	}
	s.logger.Info("orders marked viewed", "seller_id", sellerID, "count", n)
	return nil
}

func (s *Service) Stats(ctx context.Context, sellerID string) (domain.SellerOrderStats, error) {
	orders, err := s.ListForSeller(ctx, sellerID)
	if err != nil {
		return domain.SellerOrderStats{}, err
	}
	return domain.ComputeSellerStats(sellerID, orders), nil
}

func (s *Service) TopItems(ctx context.Context, sellerID string) ([]domain.TopItem, error) {
	orders, err := s.ListForSeller(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	return domain.TopItems(sellerID, orders, topItemsLimit), nil
}
