package location

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/models"
)

// ErrNotServiceable is a field-level error: the pin code is well formed but
// absent from the lookup table. It must never be presented as a network
// failure.
var ErrNotServiceable = errors.New("delivery is not available for this pin code")

// Place is the structured result both resolution paths produce.
type Place struct {
	City           string `json:"city"`
	State          string `json:"state"`
	Country        string `json:"country"`
	ShippingOption string `json:"shipping_option,omitempty"`
}

type PostalLookup struct {
	DB *gorm.DB
}

// Resolve exact-matches the pin code against the lookup table.
func (l *PostalLookup) Resolve(ctx context.Context, code string) (*Place, error) {
	var row models.PostalCode
	err := l.DB.WithContext(ctx).Where("code = ?", code).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotServiceable
	}
	if err != nil {
		return nil, fmt.Errorf("postal lookup: %w", err)
	}
	return &Place{
		City:           row.City,
		State:          row.State,
		Country:        row.Country,
		ShippingOption: row.ShippingOption,
	}, nil
}
