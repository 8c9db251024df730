package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusReceived  OrderStatus = "Received"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCanceled  OrderStatus = "Canceled"
)

// transitions lists every legal forward move. Anything absent is rejected.
var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:  {OrderStatusReceived, OrderStatusCanceled},
	OrderStatusReceived: {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusReceived, OrderStatusDelivered, OrderStatusCanceled:
		return OrderStatus(s), nil
	}
	return "", Errorf(ErrValidation, "unknown order status %q", s)
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// LineItem is a snapshot of a menu item taken when the order was placed.
type LineItem struct {
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Category  string `json:"category,omitempty"`
}

func (l LineItem) Subtotal() int64 {
	return l.Price * int64(l.Quantity)
}

// BuyerContact is populated on seller-side order listings.
type BuyerContact struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	ContactNumber string  `json:"contactNumber"`
	Address       Address `json:"address"`
}

type Order struct {
	ID               string        `json:"id"`
	BuyerID          string        `json:"buyerId"`
	Items            []LineItem    `json:"items"`
	Total            int64         `json:"total"`
	Status           OrderStatus   `json:"status"`
	CreatedAt        time.Time     `json:"createdAt"`
	ReceivedAt       *time.Time    `json:"receivedAt,omitempty"`
	DeliveredAt      *time.Time    `json:"deliveredAt,omitempty"`
	DeliveryEstimate *time.Time    `json:"deliveryEstimate,omitempty"`
	IsViewed         bool          `json:"isViewed"`
	Version          int           `json:"version"`
	Buyer            *BuyerContact `json:"buyer,omitempty"`
}

func LineItemsTotal(items []LineItem) int64 {
	var total int64
	for _, item := range items {
		total += item.Subtotal()
	}
	return total
}

// HasSeller reports whether at least one line item belongs to sellerID.
func (o *Order) HasSeller(sellerID string) bool {
	for _, item := range o.Items {
		if item.SellerID == sellerID {
			return true
		}
	}
	return false
}

// SellerIDs returns the distinct sellers of the order in first-appearance order.
func (o *Order) SellerIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	var ids []string
	for _, item := range o.Items {
		if _, ok := seen[item.SellerID]; ok {
			continue
		}
		seen[item.SellerID] = struct{}{}
		ids = append(ids, item.SellerID)
	}
	return ids
}
