package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrGeocodeUnavailable means the reverse geocoder failed or returned
// nothing usable. Callers treat it as "manual entry required", never as a
// blocking error.
var ErrGeocodeUnavailable = errors.New("reverse geocoding unavailable")

// Geocoder resolves coordinates to a structured address against a
// Nominatim-shaped endpoint.
type Geocoder struct {
	BaseURL string
	Client  *http.Client
}

func NewGeocoder(baseURL string) *Geocoder {
	return &Geocoder{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// GeocodeResult may have any subset of fields filled; the resolver falls back
// to coarser components when the fine-grained ones are missing.
type GeocodeResult struct {
	Street     string
	Suburb     string
	City       string
	State      string
	PostalCode string
	Country    string
}

func (r *GeocodeResult) Empty() bool {
	return r.Street == "" && r.Suburb == "" && r.City == "" &&
		r.State == "" && r.PostalCode == "" && r.Country == ""
}

func (g *Geocoder) Reverse(ctx context.Context, lat, lon float64) (*GeocodeResult, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', 6, 64))
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: %w", err)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrGeocodeUnavailable, resp.StatusCode)
	}

	var body struct {
		Address struct {
			Road     string `json:"road"`
			Suburb   string `json:"suburb"`
			City     string `json:"city"`
			Town     string `json:"town"`
			Village  string `json:"village"`
			State    string `json:"state"`
			Postcode string `json:"postcode"`
			Country  string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeocodeUnavailable, err)
	}

	a := body.Address
	city := a.City
	if city == "" {
		city = a.Town
	}
	if city == "" {
		city = a.Village
	}
	return &GeocodeResult{
		Street:     a.Road,
		Suburb:     a.Suburb,
		City:       city,
		State:      a.State,
		PostalCode: a.Postcode,
		Country:    a.Country,
	}, nil
}
