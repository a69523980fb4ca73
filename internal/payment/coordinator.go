package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/cart"
	"github.com/akverma/dukaan/internal/discount"
	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/mykafka"
)

// ShippingSnapshot is the address actually used for the order, copied by
// value so later address-book edits never touch the order.
type ShippingSnapshot struct {
	Name       string
	PhoneCode  string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	Latitude   *float64
	Longitude  *float64
}

// ConfirmInput is everything the coordinator needs to turn a confirmed draft
// into a persisted order.
type ConfirmInput struct {
	UserID         uint
	Items          []models.CartItem
	Address        ShippingSnapshot
	SaveAddress    bool // address is new and passed the completeness gate
	ShippingOption string
	ShippingPrice  decimal.Decimal
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	CouponCode     string
	Reference      string
}

// Coordinator performs the order-creation protocol: order + items insert in
// one transaction, then best-effort address persistence, cart clearing, and
// event publishing. The order and item inserts are the only steps that can
// fail the confirmation; everything after the commit is auxiliary.
type Coordinator struct {
	DB       *gorm.DB
	Book     *addressbook.Service
	Cart     *cart.Service
	Discount *discount.Engine
	Producer *mykafka.Producer
	Log      *slog.Logger
}

func (co *Coordinator) Confirm(ctx context.Context, in ConfirmInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, fmt.Errorf("confirm: cart is empty")
	}

	now := time.Now()
	order := models.Order{
		UserID:             in.UserID,
		ShipName:           in.Address.Name,
		ShipPhone:          in.Address.PhoneCode + in.Address.Phone,
		ShipStreet:         in.Address.Street,
		ShipCity:           in.Address.City,
		ShipState:          in.Address.State,
		ShipPostalCode:     in.Address.PostalCode,
		ShipCountry:        in.Address.Country,
		ShippingOption:     in.ShippingOption,
		ShippingPrice:      in.ShippingPrice,
		Subtotal:           in.Subtotal,
		Discount:           in.Discount,
		Total:              in.Total,
		CouponCode:         in.CouponCode,
		PaymentMethod:      "upi",
		PaymentReference:   in.Reference,
		PaymentConfirmed:   true,
		PaymentConfirmedAt: &now,
		PaymentVerified:    models.PaymentVerifyPending,
		Status:             models.OrderStatusPlaced,
	}

	txErr := co.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		// display number comes off the DB-generated id
		order.Number = fmt.Sprintf("ORD-%06d", order.ID)
		if err := tx.Model(&order).Update("number", order.Number).Error; err != nil {
			return fmt.Errorf("assign order number: %w", err)
		}

		for _, it := range in.Items {
			oi := models.OrderItem{
				OrderID:   order.ID,
				ProductID: it.ProductID,
				VariantID: it.VariantID,
				BundleID:  it.BundleID,
				Name:      it.Name,
				Brand:     it.Brand,
				UnitPrice: it.UnitPrice,
				Quantity:  it.Quantity,
				LineTotal: it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))),
			}
			if err := tx.Create(&oi).Error; err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
		}

		if in.CouponCode != "" {
			if err := co.Discount.RecordRedemption(ctx, tx, in.CouponCode, in.UserID, order.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		// no partial order is visible; the cart is untouched and the
		// caller stays on the Payment step for a retry
		return nil, txErr
	}

	// Auxiliary steps. Failures here are logged, never surfaced as order
	// failures: the payment is already recorded.
	if in.SaveAddress {
		saved := &models.SavedAddress{
			UserID:     in.UserID,
			Name:       in.Address.Name,
			PhoneCode:  in.Address.PhoneCode,
			Phone:      in.Address.Phone,
			Street:     in.Address.Street,
			City:       in.Address.City,
			State:      in.Address.State,
			PostalCode: in.Address.PostalCode,
			Country:    in.Address.Country,
			Latitude:   in.Address.Latitude,
			Longitude:  in.Address.Longitude,
		}
		if _, err := co.Book.Save(ctx, saved); err != nil {
			co.logger().Warn("auto-save address failed", "user_id", in.UserID, "error", err)
		}
	}

	if err := co.Cart.Clear(ctx, nil, in.UserID); err != nil {
		co.logger().Warn("cart clear after order failed", "user_id", in.UserID, "order_id", order.ID, "error", err)
	}

	event := map[string]any{
		"type":      "order_placed",
		"userID":    in.UserID,
		"orderID":   order.ID,
		"number":    order.Number,
		"total":     order.Total.StringFixed(2),
		"reference": order.PaymentReference,
	}
	if err := co.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(in.UserID), event); err != nil {
		co.logger().Warn("order event publish failed", "order_id", order.ID, "error", err)
	}

	return &order, nil
}

func (co *Coordinator) logger() *slog.Logger {
	if co.Log != nil {
		return co.Log
	}
	return slog.Default()
}
