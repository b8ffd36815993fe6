package models

import "github.com/google/uuid"

// PaymentTransaction tracks one PesaPal payment attempt. Rows are keyed by the
// gateway-assigned tracking id and upserted on every IPN delivery; they are
// never deleted. OrderID stays nil until the checkout flow links the attempt to
// a local order.
type PaymentTransaction struct {
	BaseModel
	TrackingID        string     `gorm:"column:tracking_id;uniqueIndex" json:"tracking_id"`
	MerchantReference string     `gorm:"index" json:"merchant_reference"`
	CallbackData      []byte     `gorm:"type:jsonb" json:"callback_data"`
	NotificationType  string     `json:"notification_type"`
	OrderID           *uuid.UUID `gorm:"type:uuid;index" json:"order_id"`
	Order             *Order     `json:"order,omitempty"`
}
