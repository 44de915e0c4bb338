package engine

import (
	"testing"

	"stock-portfolio-go/internal/ledger"
	"stock-portfolio-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// MockStore is a mock implementation of ledger.StoreInterface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveHolding(symbol string, quantity int64) error {
	args := m.Called(symbol, quantity)
	return args.Error(0)
}

func (m *MockStore) SaveAccount(buyingPower float64) error {
	args := m.Called(buyingPower)
	return args.Error(0)
}

func (m *MockStore) RecordTrade(trade *models.Trade) error {
	args := m.Called(trade)
	return args.Error(0)
}

// MockStreams is a mock implementation of stream.ManagerInterface.
type MockStreams struct {
	mock.Mock
}

func (m *MockStreams) Subscribe(symbol string) error {
	args := m.Called(symbol)
	return args.Error(0)
}

func (m *MockStreams) Unsubscribe(symbol string) {
	m.Called(symbol)
}

func (m *MockStreams) UnsubscribeAll() {
	m.Called()
}

func (m *MockStreams) LatestPrice(symbol string) (float64, bool) {
	args := m.Called(symbol)
	return args.Get(0).(float64), args.Bool(1)
}

func (m *MockStreams) IsSubscribed(symbol string) bool {
	args := m.Called(symbol)
	return args.Bool(0)
}

func (m *MockStreams) Reconcile(held map[string]int64) {
	m.Called(held)
}

// setupEngine builds an engine over the given starting state with a
// permissive store and a live price for every symbol.
func setupEngine(holdings map[string]int64, buyingPower float64) (*Engine, *MockStore, *MockStreams) {
	book := ledger.New(holdings, buyingPower)
	store := new(MockStore)
	streams := new(MockStreams)

	store.On("SaveHolding", mock.Anything, mock.Anything).Return(nil).Maybe()
	store.On("SaveAccount", mock.Anything).Return(nil).Maybe()
	store.On("RecordTrade", mock.Anything).Return(nil).Maybe()

	eng := NewEngine(zap.NewNop(), book, store, streams)
	return eng, store, streams
}

func TestExecute_BuyApplied(t *testing.T) {
	// Arrange: holdings {AAPL: 10}, buying power 1000.
	eng, store, streams := setupEngine(map[string]int64{"AAPL": 10}, 1000)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)
	streams.On("Subscribe", "AAPL").Return(nil)

	// Act: BUY 5 AAPL at market price 20.
	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 5, Side: SideBuy, MarketPrice: 20})

	// Assert
	assert.True(t, result.Applied())
	assert.Equal(t, int64(15), result.NewQuantity)
	assert.Equal(t, 900.0, result.NewBuyingPower)
	assert.NotEmpty(t, result.TradeID)
	assert.Equal(t, int64(15), eng.Ledger().Get("AAPL"))
	assert.Equal(t, 900.0, eng.Ledger().BuyingPower())

	store.AssertCalled(t, "SaveHolding", "AAPL", int64(15))
	store.AssertCalled(t, "SaveAccount", 900.0)
	streams.AssertCalled(t, "Subscribe", "AAPL")
}

func TestExecute_SellApplied(t *testing.T) {
	eng, _, streams := setupEngine(map[string]int64{"AAPL": 15}, 900)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)
	streams.On("Subscribe", "AAPL").Return(nil)

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 10, Side: SideSell, MarketPrice: 20})

	assert.True(t, result.Applied())
	assert.Equal(t, int64(5), result.NewQuantity)
	assert.Equal(t, 1100.0, result.NewBuyingPower)
}

func TestExecute_SellToZero_UnsubscribesAndKeepsRow(t *testing.T) {
	eng, _, streams := setupEngine(map[string]int64{"AAPL": 5}, 100)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)
	streams.On("Unsubscribe", "AAPL").Return()

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 5, Side: SideSell, MarketPrice: 20})

	assert.True(t, result.Applied())
	assert.Equal(t, int64(0), result.NewQuantity)
	streams.AssertCalled(t, "Unsubscribe", "AAPL")

	// The liquidated symbol stays in the ledger at zero quantity.
	_, present := eng.Ledger().Holdings()["AAPL"]
	assert.True(t, present)
}

func TestExecute_RejectsOverSell(t *testing.T) {
	eng, store, streams := setupEngine(map[string]int64{"AAPL": 15}, 900)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 20, Side: SideSell, MarketPrice: 20})

	assert.False(t, result.Applied())
	assert.ErrorIs(t, result.Rejection, ErrOverSell)
	assert.Equal(t, int64(15), eng.Ledger().Get("AAPL"))
	assert.Equal(t, 900.0, eng.Ledger().BuyingPower())
	store.AssertNotCalled(t, "RecordTrade", mock.Anything)
}

func TestExecute_RejectsInsufficientFunds(t *testing.T) {
	eng, store, streams := setupEngine(map[string]int64{"AAPL": 10}, 99)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 5, Side: SideBuy, MarketPrice: 20})

	assert.False(t, result.Applied())
	assert.ErrorIs(t, result.Rejection, ErrInsufficientFunds)
	assert.Equal(t, int64(10), eng.Ledger().Get("AAPL"))
	assert.Equal(t, 99.0, eng.Ledger().BuyingPower())
	store.AssertNotCalled(t, "SaveHolding", mock.Anything, mock.Anything)
}

func TestExecute_RejectsStalePrice(t *testing.T) {
	eng, _, streams := setupEngine(nil, 1000)
	streams.On("LatestPrice", "NVDA").Return(0.0, false)

	result := eng.Execute(TradeRequest{Symbol: "NVDA", Quantity: 1, Side: SideBuy, MarketPrice: 500})

	assert.False(t, result.Applied())
	assert.ErrorIs(t, result.Rejection, ErrStalePrice)
	assert.Equal(t, 1000.0, eng.Ledger().BuyingPower())
}

func TestExecute_RejectsNegativeMarketPrice(t *testing.T) {
	eng, _, streams := setupEngine(nil, 1000)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 1, Side: SideBuy, MarketPrice: -1})

	assert.False(t, result.Applied())
	assert.ErrorIs(t, result.Rejection, ErrStalePrice)
}

func TestExecute_RejectsInvalidQuantity(t *testing.T) {
	eng, _, streams := setupEngine(nil, 1000)
	streams.On("LatestPrice", "AAPL").Return(20.0, true).Maybe()

	for _, qty := range []int64{0, -3} {
		result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: qty, Side: SideBuy, MarketPrice: 20})
		assert.False(t, result.Applied())
		assert.ErrorIs(t, result.Rejection, ErrInvalidQuantity)
	}
}

func TestExecute_RejectsInvalidSide(t *testing.T) {
	eng, _, streams := setupEngine(nil, 1000)
	streams.On("LatestPrice", "AAPL").Return(20.0, true).Maybe()

	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 1, Side: "HOLD", MarketPrice: 20})

	assert.False(t, result.Applied())
	assert.ErrorIs(t, result.Rejection, ErrInvalidSide)
}

func TestExecute_MoneyConservation(t *testing.T) {
	// Arrange
	const initialBP = 10000.0
	eng, _, streams := setupEngine(nil, initialBP)
	streams.On("LatestPrice", mock.Anything).Return(1.0, true)
	streams.On("Subscribe", mock.Anything).Return(nil)
	streams.On("Unsubscribe", mock.Anything).Return()

	trades := []TradeRequest{
		{Symbol: "AAPL", Quantity: 10, Side: SideBuy, MarketPrice: 150},
		{Symbol: "TSLA", Quantity: 4, Side: SideBuy, MarketPrice: 700},
		{Symbol: "AAPL", Quantity: 6, Side: SideSell, MarketPrice: 155},
		{Symbol: "TSLA", Quantity: 5, Side: SideSell, MarketPrice: 710}, // rejected: oversell
		{Symbol: "AAPL", Quantity: 4, Side: SideSell, MarketPrice: 149},
		{Symbol: "MSFT", Quantity: 100, Side: SideBuy, MarketPrice: 1000}, // rejected: funds
	}

	// Act: sum the cash deltas of the trades that were applied.
	var cashDeltas float64
	for _, req := range trades {
		before := eng.Ledger().BuyingPower()
		result := eng.Execute(req)
		if result.Applied() {
			cashDeltas += result.NewBuyingPower - before
		} else {
			assert.Equal(t, before, eng.Ledger().BuyingPower())
		}
	}

	// Assert: sum(cash deltas) + final buying power == initial buying power.
	assert.InDelta(t, initialBP, eng.Ledger().BuyingPower()-cashDeltas, 1e-9)
}

func TestExecute_PersistenceFailureKeepsLedgerState(t *testing.T) {
	// Arrange: every write fails; the in-memory ledger must not roll back.
	book := ledger.New(map[string]int64{"AAPL": 10}, 1000)
	store := new(MockStore)
	streams := new(MockStreams)
	store.On("SaveHolding", mock.Anything, mock.Anything).Return(assert.AnError)
	store.On("SaveAccount", mock.Anything).Return(assert.AnError)
	store.On("RecordTrade", mock.Anything).Return(assert.AnError)
	streams.On("LatestPrice", "AAPL").Return(20.0, true)
	streams.On("Subscribe", "AAPL").Return(nil)

	eng := NewEngine(zap.NewNop(), book, store, streams)

	// Act
	result := eng.Execute(TradeRequest{Symbol: "AAPL", Quantity: 5, Side: SideBuy, MarketPrice: 20})

	// Assert
	assert.True(t, result.Applied())
	assert.Equal(t, int64(15), book.Get("AAPL"))
	assert.Equal(t, 900.0, book.BuyingPower())
	store.AssertExpectations(t)
}
