package stream

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Tick is one real-time price update for a symbol.
type Tick struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// Feed is one open quote stream for a single symbol.
type Feed interface {
	// Ticks delivers price updates in arrival order. The channel is
	// closed when the feed ends.
	Ticks() <-chan Tick
	// Errs delivers per-feed errors. An error does not end the feed.
	Errs() <-chan error
	// Close releases the underlying stream resource. Safe to call twice.
	Close() error
}

// FeedOpener opens a live quote feed for a symbol. It is the external
// real-time price source collaborator.
type FeedOpener interface {
	Open(ctx context.Context, symbol string) (Feed, error)
}

// ManagerInterface is the subscription surface consumed by the trade
// execution engine and the API layer.
type ManagerInterface interface {
	Subscribe(symbol string) error
	Unsubscribe(symbol string)
	UnsubscribeAll()
	LatestPrice(symbol string) (float64, bool)
	IsSubscribed(symbol string) bool
	Reconcile(held map[string]int64)
}

// Manager owns the live price subscriptions: at most one feed per symbol,
// opened when a symbol enters the visible holdings set and closed when it
// leaves. It is the only component that opens or closes feed resources.
type Manager struct {
	logger *zap.Logger
	opener FeedOpener

	mu     sync.Mutex
	subs   map[string]*subscription
	prices map[string]float64
	closed bool
}

// ensure Manager implements the interface
var _ ManagerInterface = (*Manager)(nil)

type subscription struct {
	feed Feed
	done chan struct{}
}

// NewManager creates a Manager that opens feeds through the given opener.
func NewManager(opener FeedOpener, logger *zap.Logger) *Manager {
	return &Manager{
		logger: logger.Named("stream"),
		opener: opener,
		subs:   make(map[string]*subscription),
		prices: make(map[string]float64),
	}
}

// Subscribe opens a live feed for the symbol. Calling it for a symbol
// that is already subscribed is a no-op, so a symbol never has two
// concurrently active feeds.
func (m *Manager) Subscribe(symbol string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("subscription manager is shut down")
	}
	if _, ok := m.subs[symbol]; ok {
		m.mu.Unlock()
		return nil
	}
	// Reserve the slot before releasing the lock so a concurrent
	// Subscribe for the same symbol stays a no-op while dialing.
	sub := &subscription{done: make(chan struct{})}
	m.subs[symbol] = sub
	m.mu.Unlock()

	feed, err := m.opener.Open(context.Background(), symbol)
	if err != nil {
		m.mu.Lock()
		if m.subs[symbol] == sub {
			delete(m.subs, symbol)
		}
		m.mu.Unlock()
		return fmt.Errorf("could not open feed for %s: %w", symbol, err)
	}

	m.mu.Lock()
	if m.subs[symbol] != sub {
		// Unsubscribed while dialing; release the feed we just opened.
		m.mu.Unlock()
		feed.Close()
		return nil
	}
	sub.feed = feed
	m.mu.Unlock()

	m.logger.Info("Subscribed to live quotes", zap.String("symbol", symbol))
	go m.readLoop(symbol, sub, feed)
	return nil
}

// readLoop applies ticks in arrival order until the feed ends or the
// subscription is torn down. Ticks that arrive after Unsubscribe are
// discarded, never applied.
func (m *Manager) readLoop(symbol string, sub *subscription, feed Feed) {
	for {
		select {
		case <-sub.done:
			return
		case tick, ok := <-feed.Ticks():
			if !ok {
				return
			}
			m.applyTick(symbol, sub, tick)
		case err, ok := <-feed.Errs():
			if !ok {
				return
			}
			// Per-symbol failure: keep the subscription and the last
			// known price, surface a warning.
			m.logger.Warn("Quote feed error",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
}

func (m *Manager) applyTick(symbol string, sub *subscription, tick Tick) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// A late tick for a replaced or removed subscription is dropped.
	if m.subs[symbol] != sub {
		return
	}
	m.prices[symbol] = tick.Price
}

// Unsubscribe releases the symbol's feed. Safe to call for a symbol that
// was never subscribed.
func (m *Manager) Unsubscribe(symbol string) {
	m.mu.Lock()
	sub, ok := m.subs[symbol]
	if ok {
		delete(m.subs, symbol)
		delete(m.prices, symbol)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	close(sub.done)
	if sub.feed != nil {
		if err := sub.feed.Close(); err != nil {
			m.logger.Warn("Failed to close quote feed",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
	m.logger.Info("Unsubscribed from live quotes", zap.String("symbol", symbol))
}

// UnsubscribeAll releases every active subscription. It is called on view
// teardown and is idempotent; no feed survives it.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	symbols := make([]string, 0, len(m.subs))
	for symbol := range m.subs {
		symbols = append(symbols, symbol)
	}
	m.closed = true
	m.mu.Unlock()

	for _, symbol := range symbols {
		m.Unsubscribe(symbol)
	}
}

// LatestPrice returns the most recent tick for a symbol without
// blocking. The second result is false until the first tick arrives.
func (m *Manager) LatestPrice(symbol string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	price, ok := m.prices[symbol]
	return price, ok
}

// IsSubscribed reports whether a feed is currently active for the symbol.
func (m *Manager) IsSubscribed(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[symbol]
	return ok
}

// Reconcile aligns the subscription set with the held quantities: every
// symbol with a positive quantity gets exactly one feed, every other
// active feed is released.
func (m *Manager) Reconcile(held map[string]int64) {
	m.mu.Lock()
	var toClose []string
	for symbol := range m.subs {
		if held[symbol] <= 0 {
			toClose = append(toClose, symbol)
		}
	}
	m.mu.Unlock()

	for _, symbol := range toClose {
		m.Unsubscribe(symbol)
	}
	for symbol, qty := range held {
		if qty <= 0 {
			continue
		}
		if err := m.Subscribe(symbol); err != nil {
			m.logger.Warn("Failed to subscribe during reconciliation",
				zap.String("symbol", symbol), zap.Error(err))
		}
	}
}
