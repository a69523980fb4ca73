package checkout

import "github.com/shopspring/decimal"

// ShippingOption is one of a fixed enumerated set. Orders persist only the
// chosen id and a price snapshot.
type ShippingOption struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Estimate string          `json:"estimate"`
}

const DefaultShippingOption = "standard"

var shippingOptions = []ShippingOption{
	{ID: "standard", Name: "Standard Delivery", Price: decimal.Zero, Estimate: "5-7 days"},
	{ID: "express", Name: "Express Delivery", Price: decimal.NewFromInt(99), Estimate: "2-3 days"},
}

func Options() []ShippingOption {
	out := make([]ShippingOption, len(shippingOptions))
	copy(out, shippingOptions)
	return out
}

func OptionByID(id string) (ShippingOption, bool) {
	for _, o := range shippingOptions {
		if o.ID == id {
			return o, true
		}
	}
	return ShippingOption{}, false
}
