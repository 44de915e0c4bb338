package models

import "gorm.io/gorm"

// Holding represents the owned quantity of a ticker symbol.
// A symbol that has been fully sold keeps its row at quantity zero;
// zero-quantity rows are filtered at display time, not deleted.
type Holding struct {
	gorm.Model
	Symbol   string `gorm:"uniqueIndex" json:"symbol"`
	Quantity int64  `gorm:"not null" json:"quantity"`
}
