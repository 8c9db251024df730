// Package worker turns seller notifications into "new order" e-mails.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/goccy/go-json"

	"github.com/joao-fontenele/goodfood/internal/domain"
	"github.com/joao-fontenele/goodfood/internal/email"
	"github.com/joao-fontenele/goodfood/internal/messaging"
)

// SellerLookup and OrderLookup return nil, nil for unknown ids.
type SellerLookup interface {
	Seller(ctx context.Context, id string) (*domain.Seller, error)
}

type OrderLookup interface {
	Get(ctx context.Context, id string) (*domain.Order, error)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type NotificationHandler struct {
	sellers SellerLookup
	orders  OrderLookup
	mailer  Mailer
	logger  *slog.Logger
}

func NewNotificationHandler(sellers SellerLookup, orders OrderLookup, mailer Mailer, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		sellers: sellers,
		orders:  orders,
		mailer:  mailer,
		logger:  logger,
	}
}

// Handle mails the seller named in the event. Events about sellers or orders
// that no longer exist are skipped.
func (h *NotificationHandler) Handle(ctx context.Context, msg messaging.Message) error {
	var event domain.SellerNotification
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("unmarshal seller notification: %w", err)
	}

	h.logger.Info("processing seller notification", "seller_id", event.SellerID, "order_id", event.OrderID)

	seller, err := h.sellers.Seller(ctx, event.SellerID)
	if err != nil {
		return fmt.Errorf("load seller %s: %w", event.SellerID, err)
	}
	if seller == nil {
		h.logger.Warn("skipping notification for unknown seller", "seller_id", event.SellerID, "order_id", event.OrderID)
		return nil
	}

	order, err := h.orders.Get(ctx, event.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", event.OrderID, err)
	}
	if order == nil {
		h.logger.Warn("skipping notification for unknown order", "seller_id", event.SellerID, "order_id", event.OrderID)
		return nil
	}

	if err := h.mailer.Send(ctx, newOrderMail(seller, order)); err != nil {
		h.logger.Error("failed to send new order email", "error", err, "seller_id", seller.ID, "order_id", order.ID)
		return fmt.Errorf("send new order email: %w", err)
	}

	h.logger.Info("seller notified", "seller_id", seller.ID, "order_id", order.ID)
	return nil
}

// newOrderMail lists only the seller's own lines of the order.
func newOrderMail(seller *domain.Seller, order *domain.Order) email.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\nYou have a new order (%s):\n\n", seller.Name, order.ID)

	var subtotal int64
	for _, item := range order.Items {
		if item.SellerID != seller.ID {
			continue
		}
		fmt.Fprintf(&b, "- %d x %s\n", item.Quantity, item.Name)
		subtotal += item.Subtotal()
	}
	fmt.Fprintf(&b, "\nYour share: %d\n", subtotal)

	return email.Message{
		To:      seller.Email,
		Subject: "New order received",
		Text:    b.String(),
	}
}
