// Package notify tells sellers that an order containing their items was placed.
package notify

import (
	"context"
	"time"

	"github.com/joao-fontenele/goodfood/internal/domain"
)

type Sink interface {
	Notify(ctx context.Context, sellerID, orderID string) error
}

type Noop struct{}

func (Noop) Notify(context.Context, string, string) error { return nil }

// Publisher is satisfied by *messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// KafkaSink publishes a domain.SellerNotification keyed by seller id.
type KafkaSink struct {
	publisher Publisher
	now       func() time.Time
}

func NewKafkaSink(p Publisher) *KafkaSink {
	return &KafkaSink{publisher: p, now: time.Now}
}

func (s *KafkaSink) Notify(ctx context.Context, sellerID, orderID string) error {
	return s.publisher.Publish(ctx, sellerID, domain.SellerNotification{
		SellerID:  sellerID,
		OrderID:   orderID,
		Timestamp: s.now().UTC(),
	})
}
