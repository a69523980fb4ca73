package payment

import (
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	qrcode "github.com/skip2/go-qrcode"
)

// Request is the payment artifact shown on the Payment step: a UPI deep link
// for same-device app handoff, a QR of the identical URI for cross-device
// payment, and the raw URI for copy-to-clipboard fallback. A fresh Request is
// generated on every entry into the Payment step so references never collide
// across retries.
type Request struct {
	Reference string `json:"reference"`
	URI       string `json:"uri"`
	QRPNG     []byte `json:"-"`
}

// NewReference derives a short human-facing transaction tag from the clock.
// It is a correlation convenience only; the order's authoritative identifier
// is the database-generated one.
func NewReference() string {
	return fmt.Sprintf("TXN%010d", time.Now().UnixNano()%1e10)
}

// NewRequest builds the UPI URI and its QR for the given payee and amount.
func NewRequest(payeeVPA, payeeName string, amount decimal.Decimal) (*Request, error) {
	ref := NewReference()

	q := url.Values{}
	q.Set("pa", payeeVPA)
	q.Set("pn", payeeName)
	q.Set("am", amount.StringFixed(2))
	q.Set("cu", "INR")
	q.Set("tr", ref)
	uri := "upi://pay?" + q.Encode()

	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("payment qr: %w", err)
	}

	return &Request{Reference: ref, URI: uri, QRPNG: png}, nil
}
