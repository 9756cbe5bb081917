package model

import "time"

// Balance is the amount of one token held by one account.
type Balance struct {
	Token     string    `gorm:"primaryKey;size:128" json:"token"`
	Account   string    `gorm:"primaryKey;size:128" json:"account"`
	Amount    int64     `gorm:"not null;default:0" json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}
