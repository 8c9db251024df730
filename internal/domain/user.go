package domain

import "time"

type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
	PaymentCard           PaymentMethod = "card"
	PaymentUPI            PaymentMethod = "upi"
)

// PaymentPreference never carries a full card number or CVV.
type PaymentPreference struct {
	Method     PaymentMethod `json:"method,omitempty"`
	CardLast4  string        `json:"cardLast4,omitempty"`
	CardExpiry string        `json:"cardExpiry,omitempty"`
	UPIID      string        `json:"upiId,omitempty"`
}

type Buyer struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Email          string            `json:"email"`
	ContactNumber  string            `json:"contactNumber"`
	Address        Address           `json:"address"`
	ProfilePicture string            `json:"profilePicture,omitempty"`
	Payment        PaymentPreference `json:"payment"`
	EmailVerified  bool              `json:"emailVerified"`
	CreatedAt      time.Time         `json:"createdAt"`
}

type Seller struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	EmailVerified  bool      `json:"emailVerified"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PendingBuyer is a registration awaiting its e-mail verification code.
type PendingBuyer struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	ContactNumber  string    `json:"contactNumber"`
	Address        Address   `json:"address"`
	ProfilePicture string    `json:"profilePicture,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}
