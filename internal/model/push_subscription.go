package model

import "time"

// PushSubscription holds a browser push subscription owned by a party.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	Party     string    `gorm:"size:128;not null;index"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}
