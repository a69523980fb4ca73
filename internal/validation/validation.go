package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// Field validators take raw user input plus whatever context the rule needs
// (country code for phone and postal formats) and return the normalized value
// or a specific failure. Callers apply normalized values only when validation
// passed.

var (
	ErrNameRequired  = errors.New("name is required")
	ErrNameInvalid   = errors.New("enter a valid name")
	ErrEmailRequired = errors.New("email is required")
	ErrEmailInvalid  = errors.New("enter a valid email address")
	ErrPhoneRequired = errors.New("phone number is required")
	ErrPhoneInvalid  = errors.New("enter a valid 10-digit mobile number")
	ErrPhoneTooShort = errors.New("phone number is too short")
	ErrPostalInvalid = errors.New("enter a valid 6-digit pin code")
	ErrStreetEmpty   = errors.New("address is required")
	ErrStreetShort   = errors.New("address is too short")
	ErrStreetInvalid = errors.New("address contains invalid characters")
	ErrCityRequired  = errors.New("city is required")
	ErrStateRequired = errors.New("state is required")
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// DomesticCountry is the country whose phone and postal formats get the
// strict checks. Everything else falls back to minimum-length rules.
const DomesticCountry = "IN"

func Name(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ErrNameRequired
	}
	hasLetter := false
	for _, r := range v {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return "", ErrNameInvalid
	}
	return v, nil
}

func Email(raw string) (string, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return "", ErrEmailRequired
	}
	if !emailRe.MatchString(v) {
		return "", ErrEmailInvalid
	}
	return v, nil
}

// Phone extracts digits from raw and validates them for the given country.
// For the domestic country an international prefix ("+91", "0091") or a
// leading trunk zero is stripped and exactly 10 digits must remain.
func Phone(raw, country string) (string, error) {
	digits := digitsOf(raw)
	if digits == "" {
		return "", ErrPhoneRequired
	}
	if country == "" || country == DomesticCountry {
		switch {
		case len(digits) == 12 && strings.HasPrefix(digits, "91"):
			digits = digits[2:]
		case len(digits) == 14 && strings.HasPrefix(digits, "0091"):
			digits = digits[4:]
		case len(digits) == 11 && strings.HasPrefix(digits, "0"):
			digits = digits[1:]
		}
		if len(digits) != 10 {
			return "", ErrPhoneInvalid
		}
		return digits, nil
	}
	if len(digits) < 6 {
		return "", ErrPhoneTooShort
	}
	return digits, nil
}

func PostalCode(raw, country string) (string, error) {
	v := strings.TrimSpace(raw)
	if country == "" || country == DomesticCountry {
		if len(v) != 6 || digitsOf(v) != v {
			return "", ErrPostalInvalid
		}
		return v, nil
	}
	if v == "" {
		return "", ErrPostalInvalid
	}
	return v, nil
}

func Street(raw string) (string, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return "", ErrStreetEmpty
	}
	if len(v) < 3 {
		return "", ErrStreetShort
	}
	for _, r := range v {
		if unicode.IsControl(r) {
			return "", ErrStreetInvalid
		}
	}
	return v, nil
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AddressForm is the raw shipping form as entered.
type AddressForm struct {
	Name       string
	Email      string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
}

// ValidateAddressForm runs every field validator. It returns field->error and
// field->normalized maps; the form is valid when the error map is empty.
func ValidateAddressForm(f AddressForm) (map[string]string, map[string]string) {
	errs := map[string]string{}
	clean := map[string]string{}

	check := func(field, value string, err error) {
		if err != nil {
			errs[field] = err.Error()
			return
		}
		clean[field] = value
	}

	v, err := Name(f.Name)
	check("name", v, err)

	v, err = Email(f.Email)
	check("email", v, err)

	v, err = Phone(f.Phone, f.Country)
	check("phone", v, err)

	v, err = Street(f.Street)
	check("street", v, err)

	if c := strings.TrimSpace(f.City); c == "" {
		errs["city"] = ErrCityRequired.Error()
	} else {
		clean["city"] = c
	}
	if s := strings.TrimSpace(f.State); s == "" {
		errs["state"] = ErrStateRequired.Error()
	} else {
		clean["state"] = s
	}

	v, err = PostalCode(f.PostalCode, f.Country)
	check("postal_code", v, err)

	return errs, clean
}
