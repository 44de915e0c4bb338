package models

import "gorm.io/gorm"

// Account represents the user's cash balance available for purchases.
// There is one row per user session.
type Account struct {
	gorm.Model
	UserID      string  `gorm:"uniqueIndex;not null" json:"user_id"`
	BuyingPower float64 `gorm:"not null" json:"buying_power"`
}
