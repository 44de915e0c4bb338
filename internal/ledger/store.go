package ledger

import (
	"errors"
	"fmt"

	"stock-portfolio-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoreInterface defines the persistence collaborator used by the trade
// execution engine. The in-memory Ledger stays authoritative for the
// session; a failed write is the caller's to reconcile.
type StoreInterface interface {
	SaveHolding(symbol string, quantity int64) error
	SaveAccount(buyingPower float64) error
	RecordTrade(trade *models.Trade) error
}

// Store persists holdings, the account and trade records through gorm.
type Store struct {
	db     *gorm.DB
	userID string
	logger *zap.Logger
}

// ensure Store implements the interface
var _ StoreInterface = (*Store)(nil)

// NewStore creates a Store for the given user.
func NewStore(db *gorm.DB, userID string, logger *zap.Logger) *Store {
	return &Store{db: db, userID: userID, logger: logger.Named("store")}
}

// LoadLedger builds the in-memory Ledger from persisted state, creating
// the account row with the starting buying power on first run.
func (s *Store) LoadLedger(startingBuyingPower float64) (*Ledger, error) {
	var account models.Account
	err := s.db.Where("user_id = ?", s.userID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Info("No account found, creating one",
			zap.String("user_id", s.userID),
			zap.Float64("buying_power", startingBuyingPower))
		account = models.Account{UserID: s.userID, BuyingPower: startingBuyingPower}
		if err := s.db.Create(&account).Error; err != nil {
			return nil, fmt.Errorf("failed to create account: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	var rows []models.Holding
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load holdings: %w", err)
	}

	holdings := make(map[string]int64, len(rows))
	for _, row := range rows {
		holdings[row.Symbol] = row.Quantity
	}

	return New(holdings, account.BuyingPower), nil
}

// SaveHolding upserts the persisted quantity for a symbol.
func (s *Store) SaveHolding(symbol string, quantity int64) error {
	holding := models.Holding{Symbol: symbol, Quantity: quantity}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&holding).Error
	if err != nil {
		return fmt.Errorf("failed to save holding %s: %w", symbol, err)
	}
	return nil
}

// SaveAccount persists the current buying power.
func (s *Store) SaveAccount(buyingPower float64) error {
	err := s.db.Model(&models.Account{}).
		Where("user_id = ?", s.userID).
		Update("buying_power", buyingPower).Error
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// RecordTrade appends an executed trade to the history.
func (s *Store) RecordTrade(trade *models.Trade) error {
	if err := s.db.Create(trade).Error; err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}
