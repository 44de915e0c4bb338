package main

import (
	"encoding/json"
	"net/http"
	"time"

	"stock-portfolio-go/internal/engine"
	"stock-portfolio-go/internal/marketdata"
	"stock-portfolio-go/internal/models"
	"stock-portfolio-go/internal/stream"
	"stock-portfolio-go/internal/valuation"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log       *zap.Logger
	db        *gorm.DB
	engine    *engine.Engine
	streams   stream.ManagerInterface
	market    marketdata.RestClientInterface
	projector *valuation.Projector
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, eng *engine.Engine, streams stream.ManagerInterface, market marketdata.RestClientInterface, projector *valuation.Projector) *APIHandler {
	return &APIHandler{
		log:       log.Named("api"),
		db:        db,
		engine:    eng,
		streams:   streams,
		market:    market,
		projector: projector,
	}
}

// TradesHandler executes a trade on POST and returns the history on GET.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.executeTrade(w, r)
	case http.MethodGet:
		h.listTrades(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *APIHandler) executeTrade(w http.ResponseWriter, r *http.Request) {
	var req engine.TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result := h.engine.Execute(req)
	if !result.Applied() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "rejected",
			"reason": result.Rejection.Error(),
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func (h *APIHandler) listTrades(w http.ResponseWriter, r *http.Request) {
	var trades []models.Trade
	// Order by most recent first
	if err := h.db.Order("timestamp desc").Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(trades)
}

// portfolioEntry is one displayed holding with its live price and daily change.
type portfolioEntry struct {
	Symbol        string               `json:"symbol"`
	Quantity      int64                `json:"quantity"`
	Price         float64              `json:"price,omitempty"`
	PriceKnown    bool                 `json:"price_known"`
	PercentChange string               `json:"percent_change,omitempty"`
	Series        []valuation.DailyBar `json:"series"`
}

// portfolioResponse is the full valuation view.
type portfolioResponse struct {
	BuyingPower float64          `json:"buying_power"`
	Holdings    []portfolioEntry `json:"holdings"`
}

// PortfolioHandler renders the valuation view: holdings with live prices
// and trading-day-aware daily change series.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	book := h.engine.Ledger()
	holdings := book.Holdings()

	symbols := make([]string, 0, len(holdings))
	barsBySymbol := make(map[string][]valuation.DailyBar, len(holdings))
	for symbol, qty := range holdings {
		if qty <= 0 {
			continue
		}
		symbols = append(symbols, symbol)
		bars, err := h.market.GetHistoricalBars(symbol)
		if err != nil {
			// A missing series degrades to an empty chart for that
			// symbol only.
			h.log.Warn("Failed to fetch historical bars",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}
		barsBySymbol[symbol] = bars
	}

	changes := h.projector.Project(symbols, holdings, barsBySymbol, time.Now())

	resp := portfolioResponse{
		BuyingPower: book.BuyingPower(),
		Holdings:    []portfolioEntry{},
	}
	for _, symbol := range symbols {
		entry := portfolioEntry{
			Symbol:   symbol,
			Quantity: holdings[symbol],
			Series:   []valuation.DailyBar{},
		}
		if price, ok := h.streams.LatestPrice(symbol); ok {
			entry.Price = price
			entry.PriceKnown = true
		}
		if change, ok := changes[symbol]; ok {
			entry.Series = change.Series
			if change.HasChange {
				entry.PercentChange = valuation.FormatPercent(change.PercentChange)
			}
		}
		resp.Holdings = append(resp.Holdings, entry)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// QuoteHandler subscribes the requested symbol and returns its price.
// Viewing a symbol is what opens its feed before the first trade.
func (h *APIHandler) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}

	if err := h.streams.Subscribe(symbol); err != nil {
		h.log.Warn("Failed to subscribe for quote",
			zap.String("symbol", symbol), zap.Error(err))
	}

	price, known := h.streams.LatestPrice(symbol)
	if !known {
		// No tick yet; fall back to a one-shot fetch so the page has
		// something to show.
		fetched, err := h.market.GetQuote(symbol)
		if err != nil {
			h.log.Error("Failed to fetch quote",
				zap.String("symbol", symbol), zap.Error(err))
			http.Error(w, "quote unavailable", http.StatusBadGateway)
			return
		}
		price = fetched
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stream.Tick{Symbol: symbol, Price: price})
}

// feedResponse is the landing page payload: index quotes and headlines.
type feedResponse struct {
	Indexes []marketdata.IndexQuote `json:"indexes"`
	News    []marketdata.NewsItem   `json:"news"`
}

// FeedHandler returns market indexes and today's top stories.
func (h *APIHandler) FeedHandler(w http.ResponseWriter, r *http.Request) {
	indexes, err := h.market.GetIndexes()
	if err != nil {
		h.log.Error("Failed to get indexes", zap.Error(err))
		http.Error(w, "Failed to get indexes", http.StatusBadGateway)
		return
	}

	news, err := h.market.GetTopNews()
	if err != nil {
		// The feed is still useful without headlines.
		h.log.Warn("Failed to get news", zap.Error(err))
		news = []marketdata.NewsItem{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(feedResponse{Indexes: indexes, News: news})
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK\n"))
}
