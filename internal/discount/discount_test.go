package discount

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/models"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&models.Coupon{}, &models.CouponRedemption{}); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func seedCoupon(db *gorm.DB, mutate func(*models.Coupon)) models.Coupon {
	c := models.Coupon{
		Code:      "SAVE10",
		Percent:   decimal.NewFromInt(10),
		MinSpend:  decimal.NewFromInt(500),
		StartsAt:  time.Now().Add(-24 * time.Hour),
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Active:    true,
	}
	if mutate != nil {
		mutate(&c)
	}
	db.Create(&c)
	return c
}

func TestValidateCoupon(t *testing.T) {
	db := initTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()
	seedCoupon(db, nil)

	res, err := e.ValidateCoupon(ctx, " save10 ", 1)
	require.NoError(t, err)
	require.True(t, res.Applicable)
	require.Equal(t, "SAVE10", res.Code)

	res, err = e.ValidateCoupon(ctx, "NOPE", 1)
	require.NoError(t, err)
	require.False(t, res.Applicable)
	require.Equal(t, "coupon not found", res.Reason)
}

func TestValidateCouponWindowAndActive(t *testing.T) {
	db := initTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedCoupon(db, func(c *models.Coupon) {
		c.Code = "EXPIRED"
		c.ExpiresAt = time.Now().Add(-time.Hour)
	})
	seedCoupon(db, func(c *models.Coupon) {
		c.Code = "FUTURE"
		c.StartsAt = time.Now().Add(time.Hour)
	})
	seedCoupon(db, func(c *models.Coupon) {
		c.Code = "OFF"
		c.Active = false
	})

	for code, reason := range map[string]string{
		"EXPIRED": "this coupon has expired",
		"FUTURE":  "this coupon is not active yet",
		"OFF":     "this coupon is no longer active",
	} {
		res, err := e.ValidateCoupon(ctx, code, 1)
		require.NoError(t, err)
		require.False(t, res.Applicable, code)
		require.Equal(t, reason, res.Reason)
	}
}

func TestValidateCouponUsageCaps(t *testing.T) {
	db := initTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()

	seedCoupon(db, func(c *models.Coupon) {
		c.Code = "CAPPED"
		c.UsageLimit = 1
	})
	seedCoupon(db, func(c *models.Coupon) {
		c.Code = "ONCEEACH"
		c.PerUserLimit = 1
	})

	require.NoError(t, e.RecordRedemption(ctx, nil, "CAPPED", 9, 100))
	res, err := e.ValidateCoupon(ctx, "CAPPED", 1)
	require.NoError(t, err)
	require.False(t, res.Applicable)
	require.Equal(t, "this coupon has been fully redeemed", res.Reason)

	require.NoError(t, e.RecordRedemption(ctx, nil, "ONCEEACH", 1, 101))
	res, err = e.ValidateCoupon(ctx, "ONCEEACH", 1)
	require.NoError(t, err)
	require.False(t, res.Applicable)
	require.Equal(t, "you have already used this coupon", res.Reason)

	// other users unaffected by the per-user cap
	res, err = e.ValidateCoupon(ctx, "ONCEEACH", 2)
	require.NoError(t, err)
	require.True(t, res.Applicable)
}

func TestComputeDiscountMinSpend(t *testing.T) {
	db := initTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()
	seedCoupon(db, nil)

	// ₹200 cart against a ₹500 minimum: valid coupon, inapplicable cart
	res, err := e.ComputeDiscount(ctx, "SAVE10", 1, decimal.NewFromInt(200))
	require.NoError(t, err)
	require.False(t, res.Applicable)
	require.Contains(t, res.Reason, "minimum spend")
	require.True(t, res.Amount.IsZero())

	res, err = e.ComputeDiscount(ctx, "SAVE10", 1, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.True(t, res.Applicable)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(100)), "got %s", res.Amount)
}

func TestComputeDiscountMaxCap(t *testing.T) {
	db := initTestDB(t)
	e := &Engine{DB: db}
	ctx := context.Background()
	seedCoupon(db, func(c *models.Coupon) {
		c.MaxDiscount = decimal.NewFromInt(50)
	})

	res, err := e.ComputeDiscount(ctx, "SAVE10", 1, decimal.NewFromInt(1000))
	require.NoError(t, err)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(50)), "got %s", res.Amount)
}

func TestMicroDiscountRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		m := MicroDiscount()
		require.True(t, m.GreaterThanOrEqual(decimal.New(1, -2)), "got %s", m)
		require.True(t, m.LessThanOrEqual(decimal.New(99, -2)), "got %s", m)
	}
}

func TestStackInvariant(t *testing.T) {
	cases := []struct {
		micro, coupon, subtotal, shipping string
	}{
		{"0.37", "100", "1000", "0"},
		{"0.99", "2000", "1000", "99"},
		{"0.50", "0", "0.60", "0"},
		{"0.99", "0", "0.50", "0"},
		{"0.42", "199.58", "200", "0"},
	}
	for _, c := range cases {
		micro, _ := decimal.NewFromString(c.micro)
		coupon, _ := decimal.NewFromString(c.coupon)
		subtotal, _ := decimal.NewFromString(c.subtotal)
		shipping, _ := decimal.NewFromString(c.shipping)

		total := Stack(micro, coupon, subtotal, shipping)
		payable := subtotal.Add(shipping).Sub(total)

		require.True(t, total.IsPositive(), "case %+v total %s", c, total)
		require.True(t, total.LessThan(subtotal.Add(shipping)), "case %+v", c)
		require.True(t, payable.GreaterThanOrEqual(decimal.New(1, -2)), "case %+v payable %s", c, payable)
	}
}

func TestStackKeepsMicroWhenCouponRemoved(t *testing.T) {
	micro := decimal.New(37, -2)
	total := Stack(micro, decimal.Zero, decimal.NewFromInt(1000), decimal.Zero)
	require.True(t, total.Equal(micro))
}
