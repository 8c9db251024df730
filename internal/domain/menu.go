package domain

import "time"

type Category string

const (
	CategoryAppetizers Category = "Appetizers"
	CategoryEntrees    Category = "Entrees"
	CategorySides      Category = "Sides"
	CategoryDesserts   Category = "Desserts"
	CategoryBeverages  Category = "Beverages"
)

var Categories = []Category{
	CategoryAppetizers,
	CategoryEntrees,
	CategorySides,
	CategoryDesserts,
	CategoryBeverages,
}

func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", Errorf(ErrValidation, "unknown category %q", s)
}

type MenuItem struct {
	ID          string    `json:"id" db:"id"`
	SellerID    string    `json:"sellerId" db:"seller_id"`
	SellerName  string    `json:"sellerName" db:"seller_name"`
	Name        string    `json:"name" db:"name"`
	Category    Category  `json:"category" db:"category"`
	Price       int64     `json:"price" db:"price"`
	Description string    `json:"description" db:"description"`
	Image       string    `json:"image,omitempty" db:"image"`
	Views       int64     `json:"views" db:"views"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

type CategoryCount struct {
	Category Category `json:"category" db:"category"`
	Count    int      `json:"count" db:"count"`
}

type LikedItem struct {
	BuyerID   string    `json:"buyerId" db:"buyer_id"`
	ProductID string    `json:"productId" db:"product_id"`
	SellerID  string    `json:"sellerId" db:"seller_id"`
	Name      string    `json:"name" db:"name"`
	Price     int64     `json:"price" db:"price"`
	Image     string    `json:"image" db:"image"`
	LikedAt   time.Time `json:"likedAt" db:"liked_at"`
}

// ViewCounts is returned after recording a product view.
type ViewCounts struct {
	ProductViews int64 `json:"productViews"`
	SellerViews  int64 `json:"sellerViews"`
}
