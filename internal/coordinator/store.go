package coordinator

import (
	"slices"
	"sync"

	"github.com/chiefduck/hellbound-sauces-sub000/internal/domain"
	apperrors "github.com/chiefduck/hellbound-sauces-sub000/pkg/errors"
)

// Store holds one session's cart. Every method runs under the store's mutex,
// so each mutation is atomic and every read sees the latest state.
type Store struct {
	mu          sync.Mutex
	items       []domain.LineItem
	isOpen      bool
	checkingOut bool

	// attempt is the token of the checkout allowed to settle the flag; zero
	// when none is. abandon is closed when that attempt is invalidated.
	attempt uint64
	nextTok uint64
	abandon chan struct{}
}

// NewStore returns an empty, closed cart.
func NewStore() *Store {
	return &Store{}
}

// AddItem adds quantity units of product. An existing line for the product
// grows by quantity and keeps its variant; otherwise a line is appended using
// variantID, or the product's default variant when variantID is empty.
// Adding always opens the drawer.
func (s *Store) AddItem(product domain.Product, quantity int, variantID string) error {
	if product.ID == "" {
		return apperrors.InvalidInput("product id is required")
	}
	if quantity < 1 {
		return apperrors.InvalidInput("quantity must be at least 1")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := domain.IndexOf(s.items, product.ID); i >= 0 {
		s.items[i].Quantity += quantity
	} else {
		if variantID == "" {
			variantID = product.DefaultVariantID
		}
		s.items = append(s.items, domain.LineItem{Product: product, Quantity: quantity, VariantID: variantID})
	}
	s.isOpen = true
	return nil
}

// RemoveItem deletes the line for productID. Absent products are ignored.
func (s *Store) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(productID)
}

func (s *Store) removeLocked(productID string) {
	i := domain.IndexOf(s.items, productID)
	if i < 0 {
		return
	}
	s.items = slices.Delete(s.items, i, i+1)
}

// UpdateQuantity sets the line's quantity to exactly quantity. Zero or less
// removes the line. Absent products are ignored.
func (s *Store) UpdateQuantity(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.removeLocked(productID)
		return
	}
	if i := domain.IndexOf(s.items, productID); i >= 0 {
		s.items[i].Quantity = quantity
	}
}

// Clear empties the cart. The drawer state is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// OpenCart shows the drawer.
func (s *Store) OpenCart() { s.setOpen(func(bool) bool { return true }) }

// CloseCart hides the drawer.
func (s *Store) CloseCart() { s.setOpen(func(bool) bool { return false }) }

// ToggleCart flips the drawer.
func (s *Store) ToggleCart() { s.setOpen(func(open bool) bool { return !open }) }

func (s *Store) setOpen(next func(bool) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.isOpen = next(s.isOpen)
}

// ItemCount is the sum of line quantities.
func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.ItemCount(s.items)
}

// Subtotal is the sum of unit price × quantity, in minor units.
func (s *Store) Subtotal() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Subtotal(s.items)
}

// IsOpen reports the drawer state.
func (s *Store) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOpen
}

// IsCheckingOut reports whether a checkout is in progress.
func (s *Store) IsCheckingOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkingOut
}

// Snapshot returns a copy of the cart with derived totals filled in.
func (s *Store) Snapshot() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() domain.CartState {
	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)

	state := domain.CartState{
		Items:         items,
		IsOpen:        s.isOpen,
		IsCheckingOut: s.checkingOut,
		ItemCount:     domain.ItemCount(items),
		Subtotal:      domain.Subtotal(items),
	}
	if len(items) > 0 {
		state.Currency = items[0].Product.Currency
	}
	return state
}

// ---------------------------------------------------------------------------
// Checkout flag
// ---------------------------------------------------------------------------

// ticket identifies one checkout attempt's right to settle the flag.
type ticket struct {
	token   uint64
	items   []domain.LineItem
	abandon <-chan struct{}
}

// beginCheckout sets the in-progress flag and snapshots the items.
func (s *Store) beginCheckout() (ticket, *domain.CheckoutError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return ticket{}, domain.NewCheckoutError(domain.KindEmptyCart, "", nil)
	}
	if s.checkingOut {
		return ticket{}, domain.NewCheckoutError(domain.KindInProgress, "", nil)
	}

	s.nextTok++
	s.attempt = s.nextTok
	s.abandon = make(chan struct{})
	s.checkingOut = true

	items := make([]domain.LineItem, len(s.items))
	copy(items, s.items)
	return ticket{token: s.attempt, items: items, abandon: s.abandon}, nil
}

// settleCheckout ends attempt token. It returns false, changing nothing, if
// the attempt is no longer current. A successful attempt leaves the flag set:
// the shopper is being sent away and only a return visit clears it.
func (s *Store) settleCheckout(token uint64, success bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == 0 || token != s.attempt {
		return false
	}
	s.attempt = 0
	s.abandon = nil
	if !success {
		s.checkingOut = false
	}
	return true
}

// resetCheckout clears the flag and invalidates any in-flight attempt.
// It reports whether the flag was set.
func (s *Store) resetCheckout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	was := s.checkingOut
	s.checkingOut = false
	s.attempt = 0
	if s.abandon != nil {
		close(s.abandon)
		s.abandon = nil
	}
	return was
}
