package domain

import "time"

// SellerNotification tells a seller that an order containing their items was placed.
type SellerNotification struct {
	SellerID  string    `json:"seller_id"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}
