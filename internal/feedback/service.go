// Package feedback stores buyers' ratings of delivered orders and the
// per-seller summaries built from them.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

const MaxImages = 3

var (
	errAlreadySubmitted = domain.Errorf(domain.ErrConflict, "feedback already submitted for this order")
	errNotDelivered     = domain.Errorf(domain.ErrConflict, "feedback can only be left on delivered orders")
	errNotYourOrder     = domain.Errorf(domain.ErrForbidden, "not allowed to access this resource")
	errFeedbackNotFound = domain.Errorf(domain.ErrNotFound, "feedback not found")
)

type Repository interface {
	Create(ctx context.Context, fb *domain.Feedback) error
	ByOrder(ctx context.Context, orderID string) (*domain.Feedback, error)
	Counts(ctx context.Context, sellerID string) (domain.FeedbackCounts, error)
	Between(ctx context.Context, sellerID string, from, to time.Time) ([]domain.Feedback, error)
	SellerRatings(ctx context.Context) ([]domain.SellerRating, error)
}

// Orders is satisfied by the order engine.
type Orders interface {
	Get(ctx context.Context, orderID string) (*domain.Order, error)
}

type Submission struct {
	OrderID string `json:"orderId" validate:"required"`
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"required,max=2000"`
	Images  []string
}

type Service struct {
	repo   Repository
	orders Orders
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, orders Orders, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{repo: repo, orders: orders, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records buyerID's feedback on one of their delivered orders. The
// seller is the owner of the order's first line item.
func (s *Service) Submit(ctx context.Context, buyerID string, sub Submission) (*domain.Feedback, error) {
	if len(sub.Images) > MaxImages {
		return nil, domain.Errorf(domain.ErrValidation, "at most %d images are allowed", MaxImages)
	}

	order, err := s.orders.Get(ctx, sub.OrderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != buyerID {
		return nil, errNotYourOrder
	}
	if order.Status != domain.OrderStatusDelivered {
		return nil, errNotDelivered
	}
	if len(order.Items) == 0 {
		return nil, domain.Errorf(domain.ErrValidation, "order has no items")
	}

	existing, err := s.repo.ByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("lookup feedback: %w", err)
	}
	if existing != nil {
		return nil, errAlreadySubmitted
	}

	images := sub.Images
	if images == nil {
		images = []string{}
	}
	fb := &domain.Feedback{
		BuyerID:   buyerID,
		SellerID:  order.Items[0].SellerID,
		OrderID:   order.ID,
		Rating:    sub.Rating,
		Comment:   sub.Comment,
		Images:    images,
		CreatedAt: s.now(),
	}
	if err := s.repo.Create(ctx, fb); err != nil {
		return nil, fmt.Errorf("create feedback: %w", err)
	}

	s.logger.Info("feedback submitted", "feedback_id", fb.ID, "order_id", fb.OrderID, "seller_id", fb.SellerID, "rating", fb.Rating)
	return fb, nil
}

func (s *Service) ByOrder(ctx context.Context, orderID string) (*domain.Feedback, error) {
	fb, err := s.repo.ByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load feedback: %w", err)
	}
	if fb == nil {
		return nil, errFeedbackNotFound
	}
	return fb, nil
}

func (s *Service) Counts(ctx context.Context, sellerID string) (domain.FeedbackCounts, error) {
	counts, err := s.repo.Counts(ctx, sellerID)
	if err != nil {
		return counts, fmt.Errorf("count feedback: %w", err)
	}
	return counts, nil
}

// Today returns the seller's feedback since local midnight.
func (s *Service) Today(ctx context.Context, sellerID string) ([]domain.Feedback, error) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	list, err := s.repo.Between(ctx, sellerID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list today's feedback: %w", err)
	}
	return list, nil
}

func (s *Service) SellerRatings(ctx context.Context) ([]domain.SellerRating, error) {
	ratings, err := s.repo.SellerRatings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list seller ratings: %w", err)
	}
	return ratings, nil
}
