package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CartItem is owned by the cart collaborator. Checkout only reads rows and
// clears them after a successful order.
type CartItem struct {
	ID        uint            `gorm:"primaryKey"                  json:"id"`
	UserID    uint            `gorm:"index;not null"              json:"user_id"`
	ProductID uint            `gorm:"not null"                    json:"product_id"`
	VariantID *uint           `json:"variant_id,omitempty"`
	BundleID  *uint           `json:"bundle_id,omitempty"`
	Name      string          `gorm:"not null"                    json:"name"`
	Brand     string          `json:"brand"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	Quantity  uint            `gorm:"default:1;check:quantity>0"  json:"quantity"`
}

type SavedAddress struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uint      `gorm:"index;not null"       json:"user_id"`
	Name       string    `gorm:"not null"             json:"name"`
	PhoneCode  string    `gorm:"not null"             json:"phone_code"`
	Phone      string    `gorm:"not null"             json:"phone"`
	Street     string    `gorm:"not null"             json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `gorm:"index"                json:"postal_code"`
	Country    string    `json:"country"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	Label      string    `json:"label"`
	IsPrimary  bool      `gorm:"default:false"        json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
}

// PostalCode is the serviceability lookup table. ShippingOption, when set,
// overrides the default option for that pin code.
type PostalCode struct {
	Code           string `gorm:"primaryKey;size:6" json:"code"`
	City           string `gorm:"not null"          json:"city"`
	State          string `gorm:"not null"          json:"state"`
	Country        string `gorm:"not null"          json:"country"`
	ShippingOption string `json:"shipping_option,omitempty"`
}

type Coupon struct {
	Code         string          `gorm:"primaryKey"         json:"code"`
	Description  string          `json:"description"`
	Percent      decimal.Decimal `gorm:"type:numeric(5,2)"  json:"percent"`
	MaxDiscount  decimal.Decimal `gorm:"type:numeric(12,2)" json:"max_discount"`
	MinSpend     decimal.Decimal `gorm:"type:numeric(12,2)" json:"min_spend"`
	StartsAt     time.Time       `json:"starts_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
	Active       bool            `gorm:"default:true"       json:"active"`
	UsageLimit   int             `json:"usage_limit"`    // 0 = unlimited
	PerUserLimit int             `json:"per_user_limit"` // 0 = unlimited
}

type CouponRedemption struct {
	ID         uint      `gorm:"primaryKey"     json:"id"`
	CouponCode string    `gorm:"index;not null" json:"coupon_code"`
	UserID     uint      `gorm:"index;not null" json:"user_id"`
	OrderID    uint      `gorm:"not null"       json:"order_id"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	OrderStatusPlaced = "placed"

	PaymentVerifyPending  = "pending"
	PaymentVerifyVerified = "verified"
	PaymentVerifyFailed   = "failed"
)

// Order is immutable to checkout once created. The shipping fields are a
// snapshot of the address used, not a reference, so later address-book edits
// never change historical orders. PaymentVerified is owned by the operator
// verification workflow, which lives outside this service.
type Order struct {
	ID                 uint            `gorm:"primaryKey"         json:"id"`
	Number             string          `gorm:"uniqueIndex"        json:"number"`
	UserID             uint            `gorm:"index;not null"     json:"user_id"`
	ShipName           string          `gorm:"not null"           json:"ship_name"`
	ShipPhone          string          `gorm:"not null"           json:"ship_phone"`
	ShipStreet         string          `gorm:"not null"           json:"ship_street"`
	ShipCity           string          `json:"ship_city"`
	ShipState          string          `json:"ship_state"`
	ShipPostalCode     string          `json:"ship_postal_code"`
	ShipCountry        string          `json:"ship_country"`
	ShippingOption     string          `gorm:"not null"           json:"shipping_option"`
	ShippingPrice      decimal.Decimal `gorm:"type:numeric(12,2)" json:"shipping_price"`
	Subtotal           decimal.Decimal `gorm:"type:numeric(12,2)" json:"subtotal"`
	Discount           decimal.Decimal `gorm:"type:numeric(12,2)" json:"discount"`
	Total              decimal.Decimal `gorm:"type:numeric(12,2)" json:"total"`
	CouponCode         string          `json:"coupon_code,omitempty"`
	PaymentMethod      string          `gorm:"not null"           json:"payment_method"`
	PaymentReference   string          `gorm:"index"              json:"payment_reference"`
	PaymentConfirmed   bool            `json:"payment_confirmed"`
	PaymentConfirmedAt *time.Time      `json:"payment_confirmed_at,omitempty"`
	PaymentVerified    string          `gorm:"default:pending"    json:"payment_verified"`
	Status             string          `gorm:"not null"           json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
}

// OrderItem snapshots a cart line at order time so catalog changes never
// alter historical orders.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey"         json:"id"`
	OrderID   uint            `gorm:"index;not null"     json:"order_id"`
	ProductID uint            `gorm:"not null"           json:"product_id"`
	VariantID *uint           `json:"variant_id,omitempty"`
	BundleID  *uint           `json:"bundle_id,omitempty"`
	Name      string          `gorm:"not null"           json:"name"`
	Brand     string          `json:"brand"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2)" json:"unit_price"`
	Quantity  uint            `gorm:"not null"           json:"quantity"`
	LineTotal decimal.Decimal `gorm:"type:numeric(12,2)" json:"line_total"`
}
