package model

import "time"

// EventLog is the append-only record of every state-changing operation.
type EventLog struct {
	Seq            uint64    `gorm:"primaryKey"`
	Type           string    `gorm:"size:32;not null;index"`
	BookingID      uint64    `gorm:"not null;index"`
	User           string    `gorm:"size:128"`
	Expert         string    `gorm:"size:128"`
	Amount         int64     `gorm:"not null"`
	ActualDuration uint64    `gorm:"not null;default:0"`
	OccurredAt     time.Time `gorm:"not null"`
}
