package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/akverma/dukaan/internal/addressbook"
	"github.com/akverma/dukaan/internal/validation"
)

// Step is the checkout state. "Blocked" is not a separate state: a step is
// blocked whenever its validations fail, and Next simply does not advance.
type Step string

const (
	StepShipping Step = "shipping"
	StepReview   Step = "review"
	StepPayment  Step = "payment"
	StepComplete Step = "complete"
)

func (s Step) IsTerminal() bool { return s == StepComplete }

// AddressEntry is the in-progress shipping entry. New is false only while
// the fields mirror a saved address; any material edit or location
// resolution flips it back to true.
type AddressEntry struct {
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	PhoneCode  string    `json:"phone_code"`
	Street     string    `json:"street"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"`
	Latitude   *float64  `json:"latitude,omitempty"`
	Longitude  *float64  `json:"longitude,omitempty"`
	New        bool      `json:"new"`
	SavedID    uuid.UUID `json:"saved_id,omitempty"`
}

// DraftOrder is the in-memory aggregate the state machine mutates. It is
// never persisted, not even partially; the Order row is created in one shot
// at confirmation.
type DraftOrder struct {
	Step           Step              `json:"step"`
	Address        AddressEntry      `json:"address"`
	FieldErrors    map[string]string `json:"field_errors,omitempty"`
	Advisory       string            `json:"advisory,omitempty"`
	Shipping       ShippingOption    `json:"shipping"`
	CouponCode     string            `json:"coupon_code,omitempty"`
	CouponDiscount decimal.Decimal   `json:"coupon_discount"`
	MicroDiscount  decimal.Decimal   `json:"micro_discount"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Discount       decimal.Decimal   `json:"discount"`
	Total          decimal.Decimal   `json:"total"`
}

func (d *DraftOrder) form() validation.AddressForm {
	return validation.AddressForm{
		Name:       d.Address.Name,
		Email:      d.Address.Email,
		Phone:      d.Address.Phone,
		Street:     d.Address.Street,
		City:       d.Address.City,
		State:      d.Address.State,
		PostalCode: d.Address.PostalCode,
		Country:    d.Address.Country,
	}
}

// saveEntry feeds the address-book completeness gate.
func (d *DraftOrder) saveEntry() addressbook.Entry {
	return addressbook.Entry{
		Name:       d.Address.Name,
		Phone:      d.Address.Phone,
		Street:     d.Address.Street,
		City:       d.Address.City,
		State:      d.Address.State,
		PostalCode: d.Address.PostalCode,
		Country:    d.Address.Country,
		New:        d.Address.New,
	}
}

// ReviewSummary is the immutable snapshot taken when entering Review.
type ReviewSummary struct {
	Address  AddressEntry    `json:"address"`
	Shipping ShippingOption  `json:"shipping"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}
