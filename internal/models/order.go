package models

import (
	"time"

	"github.com/google/uuid"
)

// Order payment statuses written by the checkout flow and the IPN reconciler.
const (
	PaymentStatusUnpaid    = "unpaid"
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusReversed  = "reversed"
)

type Order struct {
	BaseModel
	UserID              uuid.UUID   `gorm:"type:uuid;index" json:"user_id"`
	User                *User       `json:"user,omitempty"`
	OrderNumber         string      `gorm:"uniqueIndex" json:"order_number"`
	Status              string      `json:"status"`
	PaymentStatus       string      `json:"payment_status"`
	PlacedAt            time.Time   `json:"placed_at"`
	Subtotal            float64     `json:"subtotal"`
	DeliveryFee         float64     `json:"delivery_fee"`
	TotalAmount         float64     `json:"total_amount"`
	Currency            string      `json:"currency"`
	DeliveryMethod      string      `json:"delivery_method"`
	DeliveryAddressID   *uuid.UUID  `gorm:"type:uuid" json:"delivery_address_id"`
	DeliveryAddressLine string      `json:"delivery_address_line"`
	DeliveryApartment   string      `json:"delivery_apartment"`
	DeliveryCity        string      `json:"delivery_city"`
	DeliveryDistrict    string      `json:"delivery_district"`
	PickupTime          *time.Time  `json:"pickup_time"`
	Notes               string      `json:"notes"`
	Items               []OrderItem `json:"items,omitempty"`
}

type OrderItem struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:uuid" json:"product_id"`
	ProductName string     `json:"product_name"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	LineTotal   float64    `json:"line_total"`
}
