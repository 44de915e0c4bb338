package engine

import (
	"errors"
	"sync"
	"time"

	"stock-portfolio-go/internal/ledger"
	"stock-portfolio-go/internal/models"
	"stock-portfolio-go/internal/stream"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

var (
	// ErrInvalidQuantity rejects non-positive trade quantities.
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	// ErrStalePrice rejects trades submitted while no live price is known.
	ErrStalePrice = errors.New("no current price for symbol")
	// ErrInsufficientFunds rejects buys whose cost exceeds buying power.
	ErrInsufficientFunds = errors.New("cost exceeds buying power")
	// ErrOverSell rejects sells larger than the current holding.
	ErrOverSell = errors.New("sell quantity exceeds holding")
	// ErrInvalidSide rejects unknown trade sides.
	ErrInvalidSide = errors.New("side must be BUY or SELL")
)

// TradeRequest is one immutable buy/sell submission.
type TradeRequest struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	Side        string  `json:"side"`
	MarketPrice float64 `json:"market_price"`
}

// TradeResult is the terminal outcome of a request: either applied with
// the resulting ledger figures, or rejected with a specific reason.
type TradeResult struct {
	TradeID        string  `json:"trade_id,omitempty"`
	NewQuantity    int64   `json:"new_quantity"`
	NewBuyingPower float64 `json:"new_buying_power"`
	Rejection      error   `json:"-"`
}

// Applied reports whether the trade mutated the ledger.
func (r TradeResult) Applied() bool { return r.Rejection == nil }

func rejected(reason error) TradeResult { return TradeResult{Rejection: reason} }

// Engine validates and applies trade requests against the ledger. It is
// the sole writer of holding and account state; executions are serialized
// so no two trades interleave their ledger mutation.
type Engine struct {
	logger  *zap.Logger
	ledger  *ledger.Ledger
	store   ledger.StoreInterface
	streams stream.ManagerInterface

	mu sync.Mutex
}

// NewEngine creates a trade execution engine.
func NewEngine(logger *zap.Logger, l *ledger.Ledger, store ledger.StoreInterface, streams stream.ManagerInterface) *Engine {
	return &Engine{
		logger:  logger.Named("engine"),
		ledger:  l,
		store:   store,
		streams: streams,
	}
}

// Ledger exposes the engine-owned ledger for read-only use.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Execute runs one request through its single terminal transition:
// validated and applied, or rejected. A rejection never mutates the
// ledger and always carries the specific reason.
func (e *Engine) Execute(req TradeRequest) TradeResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.logger.With(
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side),
		zap.Int64("quantity", req.Quantity),
		zap.Float64("market_price", req.MarketPrice),
	)

	if req.Quantity <= 0 {
		l.Info("Trade rejected", zap.Error(ErrInvalidQuantity))
		return rejected(ErrInvalidQuantity)
	}
	if req.Side != SideBuy && req.Side != SideSell {
		l.Info("Trade rejected", zap.Error(ErrInvalidSide))
		return rejected(ErrInvalidSide)
	}
	// The submitted price must be current: the subscription manager has
	// to know a live price for the symbol at submission time.
	if _, known := e.streams.LatestPrice(req.Symbol); !known || req.MarketPrice < 0 {
		l.Info("Trade rejected", zap.Error(ErrStalePrice))
		return rejected(ErrStalePrice)
	}

	cost := float64(req.Quantity) * req.MarketPrice

	var qtyDelta int64
	var cashDelta float64
	switch req.Side {
	case SideBuy:
		if e.ledger.BuyingPower() < cost {
			l.Info("Trade rejected", zap.Error(ErrInsufficientFunds))
			return rejected(ErrInsufficientFunds)
		}
		qtyDelta, cashDelta = req.Quantity, -cost
	case SideSell:
		if req.Quantity > e.ledger.Get(req.Symbol) {
			l.Info("Trade rejected", zap.Error(ErrOverSell))
			return rejected(ErrOverSell)
		}
		qtyDelta, cashDelta = -req.Quantity, cost
	}

	newQty, newBP, err := e.ledger.ApplyTrade(req.Symbol, qtyDelta, cashDelta)
	if err != nil {
		// Both sides were validated above; map a residual ledger
		// refusal to its trade-time reason rather than a generic one.
		reason := ErrInvalidQuantity
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			reason = ErrInsufficientFunds
		}
		l.Info("Trade rejected", zap.Error(reason))
		return rejected(reason)
	}

	result := TradeResult{
		TradeID:        uuid.NewString(),
		NewQuantity:    newQty,
		NewBuyingPower: newBP,
	}

	e.persist(l, req, result, cost)
	e.reconcileSubscription(req.Symbol, newQty)

	l.Info("Trade applied",
		zap.String("trade_id", result.TradeID),
		zap.Int64("new_quantity", newQty),
		zap.Float64("new_buying_power", newBP),
	)
	return result
}

// persist writes the applied trade through to the database. Write
// failures are logged and surfaced as warnings only; the in-memory
// ledger stays authoritative for the session.
func (e *Engine) persist(l *zap.Logger, req TradeRequest, result TradeResult, cost float64) {
	if err := e.store.SaveHolding(req.Symbol, result.NewQuantity); err != nil {
		l.Warn("Failed to persist holding", zap.Error(err))
	}
	if err := e.store.SaveAccount(result.NewBuyingPower); err != nil {
		l.Warn("Failed to persist account", zap.Error(err))
	}
	trade := &models.Trade{
		TradeID:   result.TradeID,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.MarketPrice,
		Cost:      cost,
		Timestamp: time.Now().Unix(),
	}
	if err := e.store.RecordTrade(trade); err != nil {
		l.Warn("Failed to record trade", zap.Error(err))
	}
}

// reconcileSubscription keeps the feed set aligned with the holding that
// just changed: a position that is now open gets a feed, a position that
// reached zero loses its feed.
func (e *Engine) reconcileSubscription(symbol string, newQty int64) {
	if newQty > 0 {
		if err := e.streams.Subscribe(symbol); err != nil {
			e.logger.Warn("Failed to subscribe after trade",
				zap.String("symbol", symbol), zap.Error(err))
		}
		return
	}
	e.streams.Unsubscribe(symbol)
}
