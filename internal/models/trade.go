package models

import "gorm.io/gorm"

// Trade represents an executed trade record in the database.
type Trade struct {
	gorm.Model
	TradeID   string  `gorm:"uniqueIndex" json:"trade_id"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"` // "BUY" or "SELL"
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	Cost      float64 `json:"cost"`
	Timestamp int64   `json:"timestamp"`
}
