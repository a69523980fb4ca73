package discount

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/models"
)

// CouponResult carries the outcome of validating or computing a coupon.
// Reason is a human-readable rejection message when Applicable is false.
type CouponResult struct {
	Code       string          `json:"code"`
	Amount     decimal.Decimal `json:"amount"`
	Applicable bool            `json:"applicable"`
	Reason     string          `json:"reason,omitempty"`
}

type Engine struct {
	DB *gorm.DB
}

// ValidateCoupon checks existence, the active window, and usage caps. Cart
// qualification happens separately in ComputeDiscount: a coupon can pass here
// and still be rejected for the current cart.
func (e *Engine) ValidateCoupon(ctx context.Context, code string, userID uint) (*CouponResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return reject(code, "no coupon code provided"), nil
	}

	var coupon models.Coupon
	err := e.DB.WithContext(ctx).Where("code = ?", code).First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reject(code, "coupon not found"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("coupon lookup: %w", err)
	}

	now := time.Now()
	switch {
	case !coupon.Active:
		return reject(code, "this coupon is no longer active"), nil
	case !coupon.StartsAt.IsZero() && now.Before(coupon.StartsAt):
		return reject(code, "this coupon is not active yet"), nil
	case !coupon.ExpiresAt.IsZero() && now.After(coupon.ExpiresAt):
		return reject(code, "this coupon has expired"), nil
	}

	db := e.DB.WithContext(ctx).Model(&models.CouponRedemption{})
	if coupon.UsageLimit > 0 {
		var used int64
		if err := db.Where("coupon_code = ?", code).Count(&used).Error; err != nil {
			return nil, fmt.Errorf("coupon usage count: %w", err)
		}
		if used >= int64(coupon.UsageLimit) {
			return reject(code, "this coupon has been fully redeemed"), nil
		}
	}
	if coupon.PerUserLimit > 0 {
		var used int64
		if err := e.DB.WithContext(ctx).Model(&models.CouponRedemption{}).
			Where("coupon_code = ? AND user_id = ?", code, userID).
			Count(&used).Error; err != nil {
			return nil, fmt.Errorf("coupon usage count: %w", err)
		}
		if used >= int64(coupon.PerUserLimit) {
			return reject(code, "you have already used this coupon"), nil
		}
	}

	return &CouponResult{Code: code, Applicable: true}, nil
}

// ComputeDiscount re-validates against the live cart subtotal and returns
// the coupon amount. Minimum spend is checked here because the cart can
// change between applying a coupon and paying.
func (e *Engine) ComputeDiscount(ctx context.Context, code string, userID uint, subtotal decimal.Decimal) (*CouponResult, error) {
	res, err := e.ValidateCoupon(ctx, code, userID)
	if err != nil || !res.Applicable {
		return res, err
	}

	var coupon models.Coupon
	if err := e.DB.WithContext(ctx).Where("code = ?", res.Code).First(&coupon).Error; err != nil {
		return nil, fmt.Errorf("coupon lookup: %w", err)
	}

	if coupon.MinSpend.IsPositive() && subtotal.LessThan(coupon.MinSpend) {
		return reject(res.Code, fmt.Sprintf("add items worth ₹%s to use this coupon (minimum spend ₹%s)",
			coupon.MinSpend.Sub(subtotal).StringFixed(2), coupon.MinSpend.StringFixed(2))), nil
	}

	amount := subtotal.Mul(coupon.Percent).Div(decimal.NewFromInt(100)).Round(2)
	if coupon.MaxDiscount.IsPositive() && amount.GreaterThan(coupon.MaxDiscount) {
		amount = coupon.MaxDiscount
	}

	return &CouponResult{Code: res.Code, Amount: amount, Applicable: true}, nil
}

// RecordRedemption backs the usage caps; called once per placed order that
// used a coupon.
func (e *Engine) RecordRedemption(ctx context.Context, tx *gorm.DB, code string, userID, orderID uint) error {
	if tx == nil {
		tx = e.DB
	}
	red := models.CouponRedemption{CouponCode: code, UserID: userID, OrderID: orderID}
	if err := tx.WithContext(ctx).Create(&red).Error; err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}
	return nil
}

func reject(code, reason string) *CouponResult {
	return &CouponResult{Code: code, Amount: decimal.Zero, Applicable: false, Reason: reason}
}

// MicroDiscount is the session-intrinsic "surprise" discount: a random paise
// amount in [0.01, 0.99], generated once per checkout session and never
// removable by the user.
func MicroDiscount() decimal.Decimal {
	paise := rand.Intn(99) + 1
	return decimal.New(int64(paise), -2)
}

// Stack combines the micro and coupon discounts, clamping so the total
// discount stays strictly below subtotal + shipping and the final total
// never drops under one paisa. The coupon is clamped first; the micro
// discount only shrinks when it alone would wipe out the payable amount.
func Stack(micro, coupon, subtotal, shipping decimal.Decimal) (total decimal.Decimal) {
	limit := subtotal.Add(shipping).Sub(decimal.New(1, -2))
	if limit.IsNegative() {
		return decimal.Zero
	}
	if micro.GreaterThan(limit) {
		return limit
	}
	if coupon.IsNegative() {
		coupon = decimal.Zero
	}
	if micro.Add(coupon).GreaterThan(limit) {
		coupon = limit.Sub(micro)
	}
	return micro.Add(coupon)
}
