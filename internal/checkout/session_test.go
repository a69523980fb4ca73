package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/cart"
	"github.com/akverma/dukaan/internal/discount"
	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/location"
	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/payment"
)

func initTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	err = db.AutoMigrate(
		&models.CartItem{}, &models.SavedAddress{}, &models.PostalCode{},
		&models.Coupon{}, &models.CouponRedemption{},
		&models.Order{}, &models.OrderItem{},
	)
	if err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return db
}

func newTestManager(t *testing.T, db *gorm.DB) *Manager {
	cartSvc := cart.New(db)
	book := &addressbook.Service{DB: db}
	eng := &discount.Engine{DB: db}
	return NewManager(Deps{
		Cart:     cartSvc,
		Book:     book,
		Discount: eng,
		Postal:   &location.PostalLookup{DB: db},
		Device:   location.NewDeviceResolver(location.NewGeocoder("http://geocoder.invalid")),
		Coordinator: &payment.Coordinator{
			DB: db, Book: book, Cart: cartSvc, Discount: eng,
		},
		PayeeVPA:     "dukaan@upi",
		PayeeName:    "Dukaan",
		DebounceIdle: 25 * time.Millisecond,
	})
}

func seed(t *testing.T, db *gorm.DB) {
	db.Create(&models.PostalCode{Code: "560001", City: "Bengaluru", State: "Karnataka", Country: "India"})
	db.Create(&models.PostalCode{Code: "682001", City: "Kochi", State: "Kerala", Country: "India", ShippingOption: "express"})
	db.Create(&models.CartItem{UserID: 1, ProductID: 10, Name: "Steel Bottle", Brand: "Milton", UnitPrice: decimal.NewFromInt(800), Quantity: 1})
	db.Create(&models.CartItem{UserID: 1, ProductID: 11, Name: "Notebook", Brand: "Classmate", UnitPrice: decimal.NewFromInt(100), Quantity: 2})
}

func asha() identity.Identity {
	return identity.Identity{UserID: 1, Name: "Asha Rao", Email: "asha@example.com"}
}

func fillValidAddress(s *Session) {
	s.UpdateAddress(map[string]string{
		"name":        "Asha Rao",
		"email":       "asha@example.com",
		"phone":       "9876543210",
		"street":      "12 MG Road, 2nd Cross",
		"city":        "Bengaluru",
		"state":       "Karnataka",
		"postal_code": "560001",
	})
}

func TestStartRequiresNonEmptyCart(t *testing.T) {
	db := initTestDB(t)
	m := newTestManager(t, db)

	_, err := m.Start(context.Background(), identity.Identity{UserID: 7})
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestStartResumesLiveSession(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)

	s1, err := m.Start(context.Background(), asha())
	require.NoError(t, err)
	s2, err := m.Start(context.Background(), asha())
	require.NoError(t, err)
	require.Same(t, s1, s2)
}

func TestHappyPath(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	d := s.Draft()
	require.Equal(t, StepShipping, d.Step)
	require.True(t, d.Subtotal.Equal(decimal.NewFromInt(1000)))
	require.Equal(t, "Asha Rao", d.Address.Name) // prefilled from identity

	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))

	rev := s.Review()
	require.NotNil(t, rev)
	require.Equal(t, "Bengaluru", rev.Address.City)
	require.Equal(t, "standard", rev.Shipping.ID)
	require.True(t, rev.Shipping.Price.IsZero())

	require.NoError(t, s.Next(ctx))
	require.Equal(t, StepPayment, s.Draft().Step)

	req, err := s.PaymentRequest()
	require.NoError(t, err)
	require.Contains(t, req.URI, "upi://pay?")
	require.NotEmpty(t, req.QRPNG)

	order, err := s.Confirm(ctx)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPlaced, order.Status)
	require.Equal(t, StepComplete, s.Draft().Step)

	// total = 1000 - micro, micro in [0.01, 0.99]
	micro := decimal.NewFromInt(1000).Sub(order.Total)
	require.True(t, micro.GreaterThanOrEqual(decimal.New(1, -2)), "micro %s", micro)
	require.True(t, micro.LessThanOrEqual(decimal.New(99, -2)), "micro %s", micro)

	var items []models.OrderItem
	db.Where("order_id = ?", order.ID).Find(&items)
	require.Len(t, items, 2)

	var remaining []models.CartItem
	db.Where("user_id = ?", 1).Find(&remaining)
	require.Empty(t, remaining)
}

func TestPostalMissBlocksShippingStep(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	fillValidAddress(s)
	s.UpdateAddress(map[string]string{"postal_code": "999999", "city": "", "state": ""})

	// the debounced lookup misses and flags the field
	require.Eventually(t, func() bool {
		_, ok := s.Draft().FieldErrors["postal_code"]
		return ok
	}, time.Second, 10*time.Millisecond)

	err = s.Next(ctx)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	require.Contains(t, blocked.Fields, "postal_code")

	d := s.Draft()
	require.Equal(t, StepShipping, d.Step)
	require.Empty(t, d.Address.City)
	require.Empty(t, d.Address.State)
}

func TestDebouncedLookupLastValueWins(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)

	s, err := m.Start(context.Background(), asha())
	require.NoError(t, err)

	// two quick entries inside the idle window; only the last resolves
	s.UpdateAddress(map[string]string{"postal_code": "560001"})
	s.UpdateAddress(map[string]string{"postal_code": "682001"})

	require.Eventually(t, func() bool {
		return s.Draft().Address.City == "Kochi"
	}, time.Second, 10*time.Millisecond)
	require.Equal(t, "Kerala", s.Draft().Address.State)
	// table override adopted
	require.Equal(t, "express", s.Draft().Shipping.ID)
}

func TestStaleLookupResultDiscarded(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)

	s, err := m.Start(context.Background(), asha())
	require.NoError(t, err)

	s.UpdateAddress(map[string]string{"postal_code": "560001"})
	// the user keeps typing before the idle window elapses
	s.UpdateAddress(map[string]string{"postal_code": "999999"})

	time.Sleep(100 * time.Millisecond)
	d := s.Draft()
	require.Empty(t, d.Address.City, "superseded lookup must not apply")
}

func TestShippingSelection(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)

	s, err := m.Start(context.Background(), asha())
	require.NoError(t, err)

	require.ErrorIs(t, s.SelectShipping("drone"), ErrUnknownShipping)
	require.NoError(t, s.SelectShipping("express"))

	d := s.Draft()
	require.True(t, d.Shipping.Price.Equal(decimal.NewFromInt(99)))
	require.True(t, d.Total.Equal(
		d.Subtotal.Add(d.Shipping.Price).Sub(d.Discount)))
}

func TestCouponMinSpendRejection(t *testing.T) {
	db := initTestDB(t)
	db.Create(&models.PostalCode{Code: "560001", City: "Bengaluru", State: "Karnataka", Country: "India"})
	db.Create(&models.CartItem{UserID: 1, ProductID: 10, Name: "Notebook", UnitPrice: decimal.NewFromInt(200), Quantity: 1})
	db.Create(&models.Coupon{
		Code: "SAVE10", Percent: decimal.NewFromInt(10),
		MinSpend: decimal.NewFromInt(500), Active: true,
		StartsAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	})
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	res, err := s.ApplyCoupon(ctx, "SAVE10")
	require.NoError(t, err)
	require.False(t, res.Applicable)
	require.Contains(t, res.Reason, "minimum spend")

	d := s.Draft()
	require.Empty(t, d.CouponCode)
	// only the micro-discount applies
	require.True(t, d.Discount.Equal(d.MicroDiscount))
}

func TestCouponAppliedAndRemoved(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	db.Create(&models.Coupon{
		Code: "SAVE10", Percent: decimal.NewFromInt(10),
		MinSpend: decimal.NewFromInt(500), Active: true,
		StartsAt: time.Now().Add(-time.Hour), ExpiresAt: time.Now().Add(time.Hour),
	})
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	res, err := s.ApplyCoupon(ctx, "save10")
	require.NoError(t, err)
	require.True(t, res.Applicable)
	require.True(t, res.Amount.Equal(decimal.NewFromInt(100)))

	d := s.Draft()
	require.Equal(t, "SAVE10", d.CouponCode)
	require.True(t, d.Discount.Equal(d.MicroDiscount.Add(decimal.NewFromInt(100))))

	s.RemoveCoupon()
	d = s.Draft()
	require.Empty(t, d.CouponCode)
	require.True(t, d.Discount.Equal(d.MicroDiscount), "micro-discount must survive coupon removal")
}

func TestBackRegeneratesPaymentReference(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))

	first, err := s.PaymentRequest()
	require.NoError(t, err)

	s.Back()
	require.Equal(t, StepReview, s.Draft().Step)
	_, err = s.PaymentRequest()
	require.ErrorIs(t, err, ErrNotAtPayment)

	require.NoError(t, s.Next(ctx))
	second, err := s.PaymentRequest()
	require.NoError(t, err)
	require.NotEqual(t, first.Reference, second.Reference)
}

func TestBackPreservesEnteredData(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))

	s.Back()
	d := s.Draft()
	require.Equal(t, StepShipping, d.Step)
	require.Equal(t, "12 MG Road, 2nd Cross", d.Address.Street)
	require.Equal(t, "560001", d.Address.PostalCode)
}

func TestDoubleSubmitCreatesOneOrder(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Confirm(ctx)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, e := range errs {
		if e == nil {
			succeeded++
		}
	}
	require.Equal(t, 1, succeeded, "exactly one confirm must succeed: %v", errs)

	var count int64
	db.Model(&models.Order{}).Count(&count)
	require.Equal(t, int64(1), count)
}

func TestConfirmOnlyFromPayment(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	_, err = s.Confirm(ctx)
	require.ErrorIs(t, err, ErrNotAtPayment)
}

func TestSelectSavedAddressMarksEntryNotNew(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	book := &addressbook.Service{DB: db}
	saved := &models.SavedAddress{
		UserID: 1, Name: "Asha Rao", Phone: "9876543210", PhoneCode: "+91",
		Street: "7 Residency Road", City: "Bengaluru", State: "Karnataka",
		PostalCode: "560001", Country: "India",
	}
	_, err := book.Save(context.Background(), saved)
	require.NoError(t, err)

	m := newTestManager(t, db)
	s, err := m.Start(context.Background(), asha())
	require.NoError(t, err)

	require.NoError(t, s.SelectSavedAddress(context.Background(), saved.ID))
	d := s.Draft()
	require.False(t, d.Address.New)
	require.Equal(t, saved.ID, d.Address.SavedID)
	require.Equal(t, "7 Residency Road", d.Address.Street)
	require.False(t, s.SaveOffered())

	// editing the street makes it a new entry again
	s.UpdateAddress(map[string]string{"street": "8 Residency Road"})
	require.True(t, s.Draft().Address.New)
	require.True(t, s.SaveOffered())
}

func TestDeviceLocationPartialKeepsStepBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"address":{}}`))
	}))
	defer srv.Close()

	db := initTestDB(t)
	seed(t, db)
	cartSvc := cart.New(db)
	book := &addressbook.Service{DB: db}
	eng := &discount.Engine{DB: db}
	m := NewManager(Deps{
		Cart: cartSvc, Book: book, Discount: eng,
		Postal: &location.PostalLookup{DB: db},
		Device: location.NewDeviceResolver(location.NewGeocoder(srv.URL)),
		Coordinator: &payment.Coordinator{
			DB: db, Book: book, Cart: cartSvc, Discount: eng,
		},
		PayeeVPA: "dukaan@upi", PayeeName: "Dukaan",
		DebounceIdle: 25 * time.Millisecond,
	})
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	err = s.UseDeviceLocation(ctx, location.GeolocatorFunc(func(context.Context) (location.Coordinates, error) {
		return location.Coordinates{Lat: 12.97, Lon: 77.59}, nil
	}))
	require.NoError(t, err)

	d := s.Draft()
	require.Equal(t, location.PlaceholderStreet, d.Address.Street)
	require.NotEmpty(t, d.Advisory)
	require.True(t, d.Address.New)

	// city/state/pincode still missing: the step stays blocked
	s.UpdateAddress(map[string]string{"phone": "9876543210"})
	err = s.Next(ctx)
	var blocked *BlockedError
	require.ErrorAs(t, err, &blocked)
	require.Equal(t, StepShipping, s.Draft().Step)
}

func TestDeviceLocationFailureIsAdvisory(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	err = s.UseDeviceLocation(ctx, location.GeolocatorFunc(func(context.Context) (location.Coordinates, error) {
		return location.Coordinates{}, location.ErrPermissionDenied
	}))
	require.NoError(t, err)

	d := s.Draft()
	require.NotEmpty(t, d.Advisory)
	require.Empty(t, d.Address.Street) // nothing overwritten
}

func TestCartChangeRefreshesTotals(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	require.True(t, s.Draft().Subtotal.Equal(decimal.NewFromInt(1000)))

	db.Create(&models.CartItem{UserID: 1, ProductID: 12, Name: "Pen", UnitPrice: decimal.NewFromInt(50), Quantity: 2})
	m.deps.Cart.Changed(1)

	require.Eventually(t, func() bool {
		return s.Draft().Subtotal.Equal(decimal.NewFromInt(1100))
	}, time.Second, 10*time.Millisecond)
}

func TestDiscountInvariantAcrossFlow(t *testing.T) {
	db := initTestDB(t)
	db.Create(&models.PostalCode{Code: "560001", City: "Bengaluru", State: "Karnataka", Country: "India"})
	// tiny cart: micro-discount must clamp, total stays >= 0.01
	db.Create(&models.CartItem{UserID: 1, ProductID: 10, Name: "Toffee", UnitPrice: decimal.RequireFromString("0.50"), Quantity: 1})
	m := newTestManager(t, db)

	s, err := m.Start(context.Background(), asha())
	require.NoError(t, err)

	d := s.Draft()
	require.True(t, d.Discount.IsPositive())
	require.True(t, d.Discount.LessThan(d.Subtotal.Add(d.Shipping.Price)))
	require.True(t, d.Total.GreaterThanOrEqual(decimal.New(1, -2)))
}

func TestCartChangeAtPaymentReissuesPaymentRequest(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))

	before, err := s.PaymentRequest()
	require.NoError(t, err)

	db.Create(&models.CartItem{UserID: 1, ProductID: 12, Name: "Pen", UnitPrice: decimal.NewFromInt(50), Quantity: 2})
	m.deps.Cart.Changed(1)

	require.Eventually(t, func() bool {
		return s.Draft().Subtotal.Equal(decimal.NewFromInt(1100))
	}, time.Second, 10*time.Millisecond)

	after, err := s.PaymentRequest()
	require.NoError(t, err)
	require.NotEqual(t, before.URI, after.URI)
	// the scannable amount follows the recomputed payable total
	require.Contains(t, after.URI, "am="+s.Draft().Total.StringFixed(2))
}

func TestResolvePostalHonoursDraftCountry(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)

	// a 5-digit code is fine for a foreign address; only the domestic
	// 6-digit rule would reject it
	s.UpdateAddress(map[string]string{"country": "US"})
	s.UpdateAddress(map[string]string{"postal_code": "90210"})

	require.NoError(t, s.ResolvePostal(ctx))
	require.Equal(t, location.ErrNotServiceable.Error(), s.Draft().FieldErrors["postal_code"])
}

func TestLateLookupCannotTouchPlacedOrder(t *testing.T) {
	db := initTestDB(t)
	seed(t, db)
	m := newTestManager(t, db)
	ctx := context.Background()

	s, err := m.Start(ctx, asha())
	require.NoError(t, err)
	fillValidAddress(s)
	require.NoError(t, s.Next(ctx))
	require.NoError(t, s.Next(ctx))
	_, err = s.Confirm(ctx)
	require.NoError(t, err)

	total := s.Draft().Total

	// a lookup callback dispatched before the session completed; the code
	// still matches the draft, so only the terminal guard rejects it
	s.mu.Lock()
	s.applyPostalLocked("560001", &location.Place{City: "Mumbai", State: "Maharashtra", Country: "India"}, nil)
	s.mu.Unlock()

	require.Equal(t, StepComplete, s.Draft().Step)
	require.Equal(t, "Bengaluru", s.Draft().Address.City)
	require.True(t, total.Equal(s.Draft().Total))
}
