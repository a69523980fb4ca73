package checkout

import (
	"context"
	"sync"

	"github.com/akverma/dukaan/internal/identity"
)

// Manager owns the live checkout sessions, one per user. Drafts live only
// here, in memory, for the duration of checkout.
type Manager struct {
	mu       sync.Mutex
	deps     Deps
	sessions map[uint]*Session
}

func NewManager(deps Deps) *Manager {
	m := &Manager{deps: deps, sessions: map[uint]*Session{}}
	deps.Cart.OnChange(m.handleCartChange)
	return m
}

// Start begins a checkout, or resumes the user's live session on re-entry.
// A completed session is replaced by a fresh one.
func (m *Manager) Start(ctx context.Context, ident identity.Identity) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[ident.UserID]; ok && !s.Draft().Step.IsTerminal() {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	items, err := m.deps.Cart.Items(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	s := newSession(ident, items, &m.deps)

	m.mu.Lock()
	defer m.mu.Unlock()
	// re-check under lock; first starter wins
	if existing, ok := m.sessions[ident.UserID]; ok && !existing.Draft().Step.IsTerminal() {
		s.debounce.Stop()
		return existing, nil
	}
	m.sessions[ident.UserID] = s
	return s, nil
}

func (m *Manager) Get(userID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Drop abandons a session. The draft is memory only, so this is a plain
// forget; any order already created stays valid.
func (m *Manager) Drop(userID uint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.debounce.Stop()
		delete(m.sessions, userID)
	}
}

func (m *Manager) handleCartChange(userID uint) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return
	}

	items, err := m.deps.Cart.Items(context.Background(), userID)
	if err != nil {
		m.deps.logger().Warn("cart refresh failed", "user_id", userID, "error", err)
		return
	}
	s.refreshCart(items)
}
