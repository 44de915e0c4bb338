package ledger

import (
	"errors"
	"sync"
)

var (
	// ErrInvalidQuantity is returned when a delta would drive a holding negative.
	ErrInvalidQuantity = errors.New("resulting quantity would be negative")
	// ErrInsufficientFunds is returned when a cash delta would overdraw buying power.
	ErrInsufficientFunds = errors.New("insufficient buying power")
)

// Ledger is the in-memory holdings and cash state for one user session.
// It is explicitly owned and injected; the trade execution engine is its
// only writer. Persistence is a separate concern handled by Store.
type Ledger struct {
	mu          sync.Mutex
	holdings    map[string]int64
	buyingPower float64
}

// New creates a Ledger with the given starting holdings and buying power.
// The holdings map is copied; the caller keeps ownership of its argument.
func New(holdings map[string]int64, buyingPower float64) *Ledger {
	h := make(map[string]int64, len(holdings))
	for symbol, qty := range holdings {
		h[symbol] = qty
	}
	return &Ledger{holdings: h, buyingPower: buyingPower}
}

// Get returns the quantity held for a symbol, zero if absent.
func (l *Ledger) Get(symbol string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holdings[symbol]
}

// Holdings returns a snapshot copy of all holdings, including
// zero-quantity rows.
func (l *Ledger) Holdings() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int64, len(l.holdings))
	for symbol, qty := range l.holdings {
		out[symbol] = qty
	}
	return out
}

// BuyingPower returns the current cash balance.
func (l *Ledger) BuyingPower() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buyingPower
}

// ApplyDelta adds the signed delta to the symbol's quantity, creating the
// row if absent. A symbol reaching zero stays present at zero. Returns
// ErrInvalidQuantity if the resulting quantity would be negative.
func (l *Ledger) ApplyDelta(symbol string, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.applyDelta(symbol, delta)
}

// AdjustCash adds the signed delta to buying power. Returns
// ErrInsufficientFunds if a negative delta would overdraw the balance.
func (l *Ledger) AdjustCash(delta float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.adjustCash(delta)
}

// ApplyTrade applies a quantity delta and a cash delta as one atomic
// step: if either would fail, neither is applied. It returns the new
// quantity and the new buying power.
func (l *Ledger) ApplyTrade(symbol string, qtyDelta int64, cashDelta float64) (int64, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Validate both sides before touching state.
	if l.holdings[symbol]+qtyDelta < 0 {
		return 0, 0, ErrInvalidQuantity
	}
	if cashDelta < 0 && l.buyingPower+cashDelta < 0 {
		return 0, 0, ErrInsufficientFunds
	}

	newQty, _ := l.applyDelta(symbol, qtyDelta)
	newBP, _ := l.adjustCash(cashDelta)
	return newQty, newBP, nil
}

func (l *Ledger) applyDelta(symbol string, delta int64) (int64, error) {
	next := l.holdings[symbol] + delta
	if next < 0 {
		return 0, ErrInvalidQuantity
	}
	l.holdings[symbol] = next
	return next, nil
}

func (l *Ledger) adjustCash(delta float64) (float64, error) {
	next := l.buyingPower + delta
	if delta < 0 && next < 0 {
		return 0, ErrInsufficientFunds
	}
	l.buyingPower = next
	return next, nil
}
