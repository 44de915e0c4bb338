package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stock-portfolio-go/internal/calendar"
	"stock-portfolio-go/internal/config"
	"stock-portfolio-go/internal/database"
	"stock-portfolio-go/internal/engine"
	"stock-portfolio-go/internal/ledger"
	"stock-portfolio-go/internal/logger"
	"stock-portfolio-go/internal/marketdata"
	"stock-portfolio-go/internal/stream"
	"stock-portfolio-go/internal/valuation"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Load the ledger from persisted state
	store := ledger.NewStore(db, cfg.Account.UserID, log)
	book, err := store.LoadLedger(cfg.Account.StartingBuyingPower)
	if err != nil {
		log.Fatal("Failed to load ledger", zap.Error(err))
	}
	log.Info("Ledger loaded",
		zap.Int("holdings", len(book.Holdings())),
		zap.Float64("buying_power", book.BuyingPower()))

	// Trading calendar from configured holiday data
	holidays, err := calendar.NewStaticHolidaySource(cfg.Market.Holidays)
	if err != nil {
		log.Fatal("Failed to parse market holidays", zap.Error(err))
	}
	cal := calendar.New(holidays)

	// Market data collaborators
	restClient := marketdata.NewRestClient(&cfg.MarketData, log)
	opener := marketdata.NewWSFeedOpener(&cfg.MarketData, log)

	// Subscription manager: one live feed per held symbol
	streams := stream.NewManager(opener, log)
	streams.Reconcile(book.Holdings())

	tradeEngine := engine.NewEngine(log, book, store, streams)
	projector := valuation.NewProjector(cal)

	// Setup HTTP server
	mux := http.NewServeMux()
	apiHandler := NewAPIHandler(log, db, tradeEngine, streams, restClient, projector)

	mux.HandleFunc("/api/trades", apiHandler.TradesHandler)
	mux.HandleFunc("/api/portfolio", apiHandler.PortfolioHandler)
	mux.HandleFunc("/api/quote", apiHandler.QuoteHandler)
	mux.HandleFunc("/api/feed", apiHandler.FeedHandler)
	mux.HandleFunc("/health", apiHandler.HealthHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		log.Info("Starting web server", zap.String("address", addr))
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal("Web server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown: the view teardown releases every quote feed
	// exactly once before the process exits.
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
	streams.UnsubscribeAll()

	log.Info("Server has been shut down.")
}
