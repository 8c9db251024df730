package domain

import "time"

type Feedback struct {
	ID        string    `json:"id"`
	BuyerID   string    `json:"buyerId"`
	SellerID  string    `json:"sellerId"`
	OrderID   string    `json:"orderId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Images    []string  `json:"images"`
	CreatedAt time.Time `json:"createdAt"`
	BuyerName string    `json:"buyerName,omitempty"`
}

type FeedbackCounts struct {
	TotalRatings  int `json:"totalRatings"`
	TotalComments int `json:"totalComments"`
}

type SellerRating struct {
	SellerID      string   `json:"id" db:"id"`
	Name          string   `json:"name" db:"name"`
	AverageRating *float64 `json:"averageRating" db:"average_rating"`
	TotalRatings  int      `json:"totalRatings" db:"total_ratings"`
}
