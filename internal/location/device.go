package location

import (
	"context"
	"errors"
	"strings"
	"time"
)

// The three geolocation failure modes the device API distinguishes. Each maps
// to its own non-blocking advisory; none of them is a hard error.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrLocateTimeout       = errors.New("location request timed out")
)

// PlaceholderStreet fills the street line when coordinates resolved but the
// reverse geocode produced nothing usable.
const PlaceholderStreet = "Current Location"

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Geolocator is the one-shot device coordinate source. Over HTTP the browser
// does the actual positioning, so the request payload implements this; tests
// substitute fakes.
type Geolocator interface {
	Locate(ctx context.Context) (Coordinates, error)
}

// GeolocatorFunc adapts a closure to Geolocator.
type GeolocatorFunc func(ctx context.Context) (Coordinates, error)

func (f GeolocatorFunc) Locate(ctx context.Context) (Coordinates, error) { return f(ctx) }

// FailureFromCode maps a client-reported geolocation error code to the
// matching sentinel. Unknown codes degrade to ErrPositionUnavailable.
func FailureFromCode(code string) error {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrLocateTimeout
	default:
		return ErrPositionUnavailable
	}
}

// DeviceResult is what device-location resolution hands to the draft. A
// non-empty Advisory invites manual entry; it never blocks the flow. Fields
// that stayed empty are completed by hand.
type DeviceResult struct {
	Street     string       `json:"street"`
	City       string       `json:"city"`
	State      string       `json:"state"`
	PostalCode string       `json:"postal_code"`
	Country    string       `json:"country"`
	Coords     *Coordinates `json:"coords,omitempty"`
	Advisory   string       `json:"advisory,omitempty"`
}

// DeviceResolver runs the coordinate fetch and reverse geocode. Timeout
// applies to the coordinate fetch only and must be generous (>= 15s) because
// a cold GPS fix is slow.
type DeviceResolver struct {
	Geocoder *Geocoder
	Timeout  time.Duration
}

func NewDeviceResolver(g *Geocoder) *DeviceResolver {
	return &DeviceResolver{Geocoder: g, Timeout: 15 * time.Second}
}

// Resolve degrades gracefully: every failure path yields a usable
// DeviceResult with a distinct advisory instead of an error.
func (r *DeviceResolver) Resolve(ctx context.Context, loc Geolocator) *DeviceResult {
	lctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	coords, err := loc.Locate(lctx)
	if err != nil {
		return &DeviceResult{Advisory: advisoryFor(err)}
	}

	res := &DeviceResult{Coords: &coords}
	geo, err := r.Geocoder.Reverse(ctx, coords.Lat, coords.Lon)
	if err != nil || geo.Empty() {
		res.Street = PlaceholderStreet
		res.Advisory = "We found your location but couldn't work out the address. Please fill in the remaining fields."
		return res
	}

	res.Street = geo.Street
	if res.Street == "" {
		res.Street = geo.Suburb
	}
	if res.Street == "" {
		res.Street = PlaceholderStreet
	}
	res.City = geo.City
	res.State = geo.State
	res.PostalCode = geo.PostalCode
	res.Country = geo.Country
	if res.City == "" || res.State == "" || res.PostalCode == "" {
		res.Advisory = "Some address details couldn't be determined. Please complete them manually."
	}
	return res
}

func advisoryFor(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied. You can enter your address manually."
	case errors.Is(err, ErrLocateTimeout):
		return "Locating you took too long. You can enter your address manually."
	default:
		return "Your location couldn't be determined. You can enter your address manually."
	}
}
