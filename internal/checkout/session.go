package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/cart"
	"github.com/akverma/dukaan/internal/discount"
	"github.com/akverma/dukaan/internal/identity"
	"github.com/akverma/dukaan/internal/location"
	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/payment"
	"github.com/akverma/dukaan/internal/validation"
)

var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrConfirmInFlight = errors.New("payment confirmation already in progress")
	ErrLocateInFlight  = errors.New("location request already in progress")
	ErrAlreadyPlaced   = errors.New("order already placed")
	ErrNotAtPayment    = errors.New("not at the payment step")
	ErrUnknownShipping = errors.New("unknown shipping option")
)

// BlockedError reports the field errors that stop a step from advancing.
type BlockedError struct {
	Fields map[string]string
}

func (e *BlockedError) Error() string { return "please fix the highlighted fields" }

// Deps is everything a session needs, injected instead of reached through
// globals so the orchestrator tests in isolation.
type Deps struct {
	Cart        *cart.Service
	Book        *addressbook.Service
	Discount    *discount.Engine
	Postal      *location.PostalLookup
	Device      *location.DeviceResolver
	Coordinator *payment.Coordinator
	Log         *slog.Logger

	PayeeVPA     string
	PayeeName    string
	DebounceIdle time.Duration
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// Session drives one user's checkout. All mutation happens under mu in
// response to completed operations; in-flight I/O never touches the draft.
type Session struct {
	mu   sync.Mutex
	deps *Deps

	userID uint
	draft  DraftOrder
	items  []models.CartItem

	review   *ReviewSummary
	payReq   *payment.Request
	order    *models.Order
	debounce *location.Debouncer

	confirming bool
	locating   bool
}

func newSession(ident identity.Identity, items []models.CartItem, deps *Deps) *Session {
	s := &Session{
		deps:   deps,
		userID: ident.UserID,
		items:  items,
		draft: DraftOrder{
			Step: StepShipping,
			Address: AddressEntry{
				Name:      ident.Name,
				Email:     ident.Email,
				PhoneCode: "+91",
				Country:   validation.DomesticCountry,
				New:       true,
			},
			FieldErrors:   map[string]string{},
			Shipping:      mustOption(DefaultShippingOption),
			MicroDiscount: discount.MicroDiscount(),
		},
	}
	s.debounce = location.NewDebouncer(deps.DebounceIdle, func(code string) {
		// fired off the debounce timer; applyPostal discards stale values
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		place, err := deps.Postal.Resolve(ctx, code)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.applyPostalLocked(code, place, err)
	})
	s.recomputeLocked()
	return s
}

func mustOption(id string) ShippingOption {
	o, ok := OptionByID(id)
	if !ok {
		panic("unknown shipping option " + id)
	}
	return o
}

// Draft returns a copy of the current draft for rendering.
func (s *Session) Draft() DraftOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	d.FieldErrors = copyErrors(s.draft.FieldErrors)
	return d
}

func (s *Session) Review() *ReviewSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.review == nil {
		return nil
	}
	r := *s.review
	return &r
}

func (s *Session) Order() *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order
}

// SaveOffered recomputes the completeness gate; it changes on every edit.
func (s *Session) SaveOffered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return addressbook.EligibleForSave(s.draft.saveEntry())
}

// UpdateAddress applies raw field edits. Each edited field is re-validated
// on its own and its previous error cleared immediately; whole-form
// validation happens again at the Shipping->Review gate.
func (s *Session) UpdateAddress(fields map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for field, raw := range fields {
		switch field {
		case "name":
			s.draft.Address.Name = raw
			s.setFieldError(field, errOnly(validation.Name(raw)))
		case "email":
			s.draft.Address.Email = raw
			s.setFieldError(field, errOnly(validation.Email(raw)))
		case "phone":
			s.draft.Address.Phone = raw
			s.setFieldError(field, errOnly(validation.Phone(raw, s.draft.Address.Country)))
		case "phone_code":
			s.draft.Address.PhoneCode = raw
		case "street":
			s.draft.Address.Street = raw
			s.setFieldError(field, errOnly(validation.Street(raw)))
			s.markEdited()
		case "city":
			s.draft.Address.City = raw
			delete(s.draft.FieldErrors, field)
			s.markEdited()
		case "state":
			s.draft.Address.State = raw
			delete(s.draft.FieldErrors, field)
			s.markEdited()
		case "country":
			s.draft.Address.Country = raw
		case "postal_code":
			s.draft.Address.PostalCode = raw
			s.markEdited()
			if _, err := validation.PostalCode(raw, s.draft.Address.Country); err != nil {
				s.draft.FieldErrors[field] = err.Error()
			} else {
				delete(s.draft.FieldErrors, field)
				s.debounce.Trigger(raw)
			}
		}
	}
}

func (s *Session) markEdited() {
	s.draft.Address.New = true
	s.draft.Address.SavedID = uuid.Nil
}

func (s *Session) setFieldError(field string, err error) {
	if err != nil {
		s.draft.FieldErrors[field] = err.Error()
	} else {
		delete(s.draft.FieldErrors, field)
	}
}

func errOnly(_ string, err error) error { return err }

// ResolvePostal runs the lookup immediately (field blur / explicit check),
// bypassing the idle window.
func (s *Session) ResolvePostal(ctx context.Context) error {
	s.mu.Lock()
	code := s.draft.Address.PostalCode
	country := s.draft.Address.Country
	s.mu.Unlock()

	if _, err := validation.PostalCode(code, country); err != nil {
		return err
	}

	place, err := s.deps.Postal.Resolve(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPostalLocked(code, place, err)
	if err != nil && !errors.Is(err, location.ErrNotServiceable) {
		return err
	}
	return nil
}

// applyPostalLocked applies a lookup outcome, discarding it when the field
// has moved on since the lookup was issued.
func (s *Session) applyPostalLocked(code string, place *location.Place, err error) {
	if s.draft.Step.IsTerminal() {
		return // a callback dispatched before Stop must not touch a placed order
	}
	if s.draft.Address.PostalCode != code {
		return // superseded
	}
	if errors.Is(err, location.ErrNotServiceable) {
		s.draft.FieldErrors["postal_code"] = err.Error()
		return
	}
	if err != nil {
		s.deps.logger().Warn("postal lookup failed", "code", code, "error", err)
		return
	}
	s.draft.Address.City = place.City
	s.draft.Address.State = place.State
	if place.Country != "" {
		s.draft.Address.Country = countryCode(place.Country)
	}
	delete(s.draft.FieldErrors, "postal_code")
	delete(s.draft.FieldErrors, "city")
	delete(s.draft.FieldErrors, "state")
	if place.ShippingOption != "" {
		if o, ok := OptionByID(place.ShippingOption); ok {
			s.draft.Shipping = o
		}
	}
	s.recomputeLocked()
}

func countryCode(name string) string {
	if strings.EqualFold(name, "india") {
		return validation.DomesticCountry
	}
	return name
}

// SelectSavedAddress loads a saved address into the draft and marks the
// entry as a non-new selection.
func (s *Session) SelectSavedAddress(ctx context.Context, id uuid.UUID) error {
	addr, err := s.deps.Book.Get(ctx, s.userID, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Address.Name = addr.Name
	s.draft.Address.Phone = addr.Phone
	s.draft.Address.PhoneCode = addr.PhoneCode
	s.draft.Address.Street = addr.Street
	s.draft.Address.City = addr.City
	s.draft.Address.State = addr.State
	s.draft.Address.PostalCode = addr.PostalCode
	s.draft.Address.Country = countryCode(addr.Country)
	s.draft.Address.Latitude = addr.Latitude
	s.draft.Address.Longitude = addr.Longitude
	s.draft.Address.New = false
	s.draft.Address.SavedID = addr.ID
	s.draft.FieldErrors = map[string]string{}
	return nil
}

// UseDeviceLocation resolves device coordinates into the draft. Only one
// resolution may be in flight; failures surface as advisories, never errors.
func (s *Session) UseDeviceLocation(ctx context.Context, loc location.Geolocator) error {
	s.mu.Lock()
	if s.locating {
		s.mu.Unlock()
		return ErrLocateInFlight
	}
	s.locating = true
	s.mu.Unlock()

	res := s.deps.Device.Resolve(ctx, loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.locating = false
	s.draft.Advisory = res.Advisory
	if res.Coords == nil {
		return nil
	}

	s.draft.Address.Street = res.Street
	s.draft.Address.City = res.City
	s.draft.Address.State = res.State
	s.draft.Address.PostalCode = res.PostalCode
	if res.Country != "" {
		s.draft.Address.Country = countryCode(res.Country)
	}
	s.draft.Address.Latitude = &res.Coords.Lat
	s.draft.Address.Longitude = &res.Coords.Lon
	// a resolved location is always a new entry, not a saved one
	s.draft.Address.New = true
	s.draft.Address.SavedID = uuid.Nil
	for _, f := range []string{"street", "city", "state", "postal_code"} {
		delete(s.draft.FieldErrors, f)
	}
	return nil
}

func (s *Session) SelectShipping(id string) error {
	o, ok := OptionByID(id)
	if !ok {
		return ErrUnknownShipping
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.Shipping = o
	s.recomputeLocked()
	return nil
}

// ApplyCoupon validates and computes the coupon against the live cart. A
// rejection is business feedback, not an error: the micro-discount stays and
// the result carries the human reason.
func (s *Session) ApplyCoupon(ctx context.Context, code string) (*discount.CouponResult, error) {
	s.mu.Lock()
	subtotal := s.draft.Subtotal
	s.mu.Unlock()

	res, err := s.deps.Discount.ComputeDiscount(ctx, code, s.userID, subtotal)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res.Applicable {
		s.draft.CouponCode = res.Code
		s.draft.CouponDiscount = res.Amount
		s.recomputeLocked()
	}
	return res, nil
}

// RemoveCoupon clears the coupon only; the micro-discount is session
// intrinsic and survives.
func (s *Session) RemoveCoupon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft.CouponCode = ""
	s.draft.CouponDiscount = decimal.Zero
	s.recomputeLocked()
}

// Next advances the state machine one step, gating on the step's
// validations. It never retries on failure; the caller fixes and calls
// again.
func (s *Session) Next(ctx context.Context) error {
	s.mu.Lock()
	step := s.draft.Step
	s.mu.Unlock()

	switch step {
	case StepShipping:
		return s.advanceToReview(ctx)
	case StepReview:
		return s.advanceToPayment()
	case StepPayment:
		return ErrNotAtPayment // only Confirm leaves Payment
	default:
		return ErrAlreadyPlaced
	}
}

func (s *Session) advanceToReview(ctx context.Context) error {
	s.mu.Lock()
	errs, clean := validation.ValidateAddressForm(s.draft.form())
	if len(errs) > 0 {
		// merge with live field errors (e.g. a serviceability miss from
		// the debounced lookup) so the caller sees the full picture
		for f, msg := range errs {
			s.draft.FieldErrors[f] = msg
		}
		fields := copyErrors(s.draft.FieldErrors)
		s.mu.Unlock()
		return &BlockedError{Fields: fields}
	}
	code := clean["postal_code"]
	s.mu.Unlock()

	// serviceability is part of the gate: an unknown pin code blocks here
	place, err := s.deps.Postal.Resolve(ctx, code)

	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, location.ErrNotServiceable) {
		s.draft.FieldErrors["postal_code"] = err.Error()
		return &BlockedError{Fields: map[string]string{"postal_code": err.Error()}}
	}
	if err != nil {
		return fmt.Errorf("checking pin code: %w", err)
	}

	// apply sanitized values now that the whole form passed
	s.draft.Address.Name = clean["name"]
	s.draft.Address.Email = clean["email"]
	s.draft.Address.Phone = clean["phone"]
	s.draft.Address.Street = clean["street"]
	s.draft.Address.City = place.City
	s.draft.Address.State = place.State
	s.draft.FieldErrors = map[string]string{}
	if place.ShippingOption != "" {
		if o, ok := OptionByID(place.ShippingOption); ok {
			s.draft.Shipping = o
		}
	}
	s.recomputeLocked()

	s.review = &ReviewSummary{
		Address:  s.draft.Address,
		Shipping: s.draft.Shipping,
		Subtotal: s.draft.Subtotal,
		Discount: s.draft.Discount,
		Total:    s.draft.Total,
	}
	s.draft.Step = StepReview
	return nil
}

func (s *Session) advanceToPayment() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// a fresh reference on every entry; stale artifacts are never reused
	req, err := payment.NewRequest(s.deps.PayeeVPA, s.deps.PayeeName, s.draft.Total)
	if err != nil {
		return err
	}
	s.payReq = req
	s.draft.Step = StepPayment
	return nil
}

// Back re-enters the previous step without discarding entered data.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.draft.Step {
	case StepReview:
		s.draft.Step = StepShipping
	case StepPayment:
		s.payReq = nil // regenerated on re-entry
		s.draft.Step = StepReview
	}
}

// PaymentRequest returns the artifact for the Payment step.
func (s *Session) PaymentRequest() (*payment.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.Step != StepPayment || s.payReq == nil {
		return nil, ErrNotAtPayment
	}
	r := *s.payReq
	return &r, nil
}

// Confirm is the user's "payment done" signal. Exactly-once: a second call
// while one is in flight fails fast, and a completed session never confirms
// again. The dispatched order creation is never cancelled mid-flight; if the
// caller navigated away the order still stands.
func (s *Session) Confirm(ctx context.Context) (*models.Order, error) {
	s.mu.Lock()
	if s.draft.Step == StepComplete {
		s.mu.Unlock()
		return nil, ErrAlreadyPlaced
	}
	if s.draft.Step != StepPayment || s.payReq == nil {
		s.mu.Unlock()
		return nil, ErrNotAtPayment
	}
	if s.confirming {
		s.mu.Unlock()
		return nil, ErrConfirmInFlight
	}
	s.confirming = true

	in := payment.ConfirmInput{
		UserID: s.userID,
		Items:  append([]models.CartItem(nil), s.items...),
		Address: payment.ShippingSnapshot{
			Name:       s.draft.Address.Name,
			PhoneCode:  s.draft.Address.PhoneCode,
			Phone:      s.draft.Address.Phone,
			Street:     s.draft.Address.Street,
			City:       s.draft.Address.City,
			State:      s.draft.Address.State,
			PostalCode: s.draft.Address.PostalCode,
			Country:    countryName(s.draft.Address.Country),
			Latitude:   s.draft.Address.Latitude,
			Longitude:  s.draft.Address.Longitude,
		},
		SaveAddress:    addressbook.EligibleForSave(s.draft.saveEntry()),
		ShippingOption: s.draft.Shipping.ID,
		ShippingPrice:  s.draft.Shipping.Price,
		Subtotal:       s.draft.Subtotal,
		Discount:       s.draft.Discount,
		Total:          s.draft.Total,
		CouponCode:     s.draft.CouponCode,
		Reference:      s.payReq.Reference,
	}
	s.mu.Unlock()

	order, err := s.deps.Coordinator.Confirm(ctx, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirming = false
	if err != nil {
		// hard failure: stay on Payment, cart untouched, user may retry
		return nil, err
	}
	s.order = order
	s.draft.Step = StepComplete
	s.debounce.Stop()
	return order, nil
}

func countryName(code string) string {
	if code == validation.DomesticCountry {
		return "India"
	}
	return code
}

// refreshCart reloads line items after the cart collaborator reports a
// change. Completed sessions are left alone.
func (s *Session) refreshCart(items []models.CartItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft.Step == StepComplete {
		return
	}
	s.items = items
	s.recomputeLocked()

	// the scannable amount must track the payable total; reissue the
	// artifact rather than let a stale am= linger at the Payment step
	if s.draft.Step == StepPayment && s.payReq != nil {
		req, err := payment.NewRequest(s.deps.PayeeVPA, s.deps.PayeeName, s.draft.Total)
		if err != nil {
			s.payReq = nil // re-entering the step regenerates it
			return
		}
		s.payReq = req
	}
}

func (s *Session) recomputeLocked() {
	s.draft.Subtotal = cart.Subtotal(s.items)
	s.draft.Discount = discount.Stack(
		s.draft.MicroDiscount, s.draft.CouponDiscount,
		s.draft.Subtotal, s.draft.Shipping.Price,
	)
	s.draft.Total = s.draft.Subtotal.Add(s.draft.Shipping.Price).Sub(s.draft.Discount)
}

func copyErrors(src map[string]string) map[string]string {
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
