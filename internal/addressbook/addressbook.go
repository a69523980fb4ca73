package addressbook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/models"
	"github.com/akverma/dukaan/internal/validation"
)

var ErrNotFound = errors.New("address not found")

type Service struct {
	DB *gorm.DB
}

// List returns the user's addresses, primary first, then newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]models.SavedAddress, error) {
	var rows []models.SavedAddress
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("is_primary DESC, created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, userID uint, id uuid.UUID) (*models.SavedAddress, error) {
	var row models.SavedAddress
	err := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	return &row, nil
}

// Save inserts or updates an address. A duplicate (same normalized street and
// postal code for the same user, excluding the record being edited) is
// silently skipped: the call reports success with saved=false so repeated
// saves stay idempotent. The very first address a user saves becomes primary.
func (s *Service) Save(ctx context.Context, addr *models.SavedAddress) (saved bool, err error) {
	dup, err := s.findDuplicate(ctx, addr)
	if err != nil {
		return false, err
	}
	if dup {
		return false, nil
	}

	if addr.Label == "" {
		addr.Label = DeriveLabel(addr.Street, addr.City)
	}
	if addr.Country == "" {
		addr.Country = "India"
	}
	if addr.PhoneCode == "" {
		addr.PhoneCode = "+91"
	}

	db := s.DB.WithContext(ctx)
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
		var count int64
		if err := db.Model(&models.SavedAddress{}).Where("user_id = ?", addr.UserID).Count(&count).Error; err != nil {
			return false, fmt.Errorf("save address: %w", err)
		}
		if count == 0 {
			addr.IsPrimary = true
		}
		if err := db.Create(addr).Error; err != nil {
			return false, fmt.Errorf("save address: %w", err)
		}
		return true, nil
	}

	res := db.Model(&models.SavedAddress{}).
		Where("id = ? AND user_id = ?", addr.ID, addr.UserID).
		Updates(map[string]any{
			"name":        addr.Name,
			"phone_code":  addr.PhoneCode,
			"phone":       addr.Phone,
			"street":      addr.Street,
			"city":        addr.City,
			"state":       addr.State,
			"postal_code": addr.PostalCode,
			"country":     addr.Country,
			"latitude":    addr.Latitude,
			"longitude":   addr.Longitude,
			"label":       addr.Label,
		})
	if res.Error != nil {
		return false, fmt.Errorf("update address: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, ErrNotFound
	}
	return true, nil
}

// SetPrimary enforces the single-primary invariant: all of the user's
// addresses are cleared before the chosen one is set, in one transaction.
func (s *Service) SetPrimary(ctx context.Context, userID uint, id uuid.UUID) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.SavedAddress{}).
			Where("user_id = ?", userID).
			Update("is_primary", false).Error; err != nil {
			return fmt.Errorf("clear primary: %w", err)
		}
		res := tx.Model(&models.SavedAddress{}).
			Where("id = ? AND user_id = ?", id, userID).
			Update("is_primary", true)
		if res.Error != nil {
			return fmt.Errorf("set primary: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Delete removes an address on explicit user request; addresses are never
// deleted any other way.
func (s *Service) Delete(ctx context.Context, userID uint, id uuid.UUID) error {
	res := s.DB.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.SavedAddress{})
	if res.Error != nil {
		return fmt.Errorf("delete address: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) findDuplicate(ctx context.Context, addr *models.SavedAddress) (bool, error) {
	var rows []models.SavedAddress
	q := s.DB.WithContext(ctx).Where("user_id = ?", addr.UserID)
	if addr.ID != uuid.Nil {
		q = q.Where("id <> ?", addr.ID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return false, fmt.Errorf("duplicate check: %w", err)
	}
	key := normalizeKey(addr.Street, addr.PostalCode)
	for _, r := range rows {
		if normalizeKey(r.Street, r.PostalCode) == key {
			return true, nil
		}
	}
	return false, nil
}

func normalizeKey(street, postal string) string {
	s := strings.ToLower(strings.Join(strings.Fields(street), " "))
	return s + "|" + strings.TrimSpace(postal)
}

// DeriveLabel picks a label when the user didn't supply one: street keyword
// match, then city, then a generic fallback.
func DeriveLabel(street, city string) string {
	lower := strings.ToLower(street)
	switch {
	case containsAny(lower, "office", "work", "tower", "tech park", "business"):
		return "Work"
	case containsAny(lower, "home", "house", "apartment", "flat", "villa"):
		return "Home"
	case containsAny(lower, "hotel", "hostel", "resort", "lodge", "guest house"):
		return "Hotel"
	case strings.TrimSpace(city) != "":
		return strings.TrimSpace(city)
	default:
		return "Other"
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Entry is an in-progress address as assembled during checkout.
type Entry struct {
	Name       string
	Phone      string
	Street     string
	City       string
	State      string
	PostalCode string
	Country    string
	New        bool
}

// EligibleForSave is the completeness gate for offering "save this
// address?": every required field present, a valid postal code, and the
// entry not loaded from an already saved address.
func EligibleForSave(e Entry) bool {
	if !e.New {
		return false
	}
	if e.Name == "" || e.Phone == "" || e.Street == "" || e.City == "" || e.State == "" {
		return false
	}
	if _, err := validation.PostalCode(e.PostalCode, e.Country); err != nil {
		return false
	}
	return true
}
