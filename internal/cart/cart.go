package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/akverma/dukaan/internal/models"
)

// Service is the narrow cart surface checkout consumes: read the lines,
// clear them after a placed order, and subscribe to changes. The browsing
// and mutation UI lives elsewhere.
type Service struct {
	DB *gorm.DB

	mu   sync.Mutex
	subs []func(userID uint)
}

func New(db *gorm.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) Items(ctx context.Context, userID uint) ([]models.CartItem, error) {
	var items []models.CartItem
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return items, nil
}

// Clear deletes the user's cart, typically after order creation. The deletion
// may run inside the caller's transaction via tx; pass nil to use the
// service's own connection. Subscribers are notified either way.
func (s *Service) Clear(ctx context.Context, tx *gorm.DB, userID uint) error {
	db := tx
	if db == nil {
		db = s.DB
	}
	if err := db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	s.notify(userID)
	return nil
}

// OnChange registers a handler invoked whenever the user's cart contents
// change. This replaces ambient window-level broadcasts with an explicit
// subscription the orchestrator owns.
func (s *Service) OnChange(fn func(userID uint)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Changed is called by the cart mutation surface after any write.
func (s *Service) Changed(userID uint) {
	s.notify(userID)
}

func (s *Service) notify(userID uint) {
	s.mu.Lock()
	subs := make([]func(uint), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(userID)
	}
}

// Subtotal sums unit price times quantity across the lines.
func Subtotal(items []models.CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}
