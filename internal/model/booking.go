package model

import "time"

// BookingStatus is the settlement state of a booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingComplete  BookingStatus = "complete"
	BookingReclaimed BookingStatus = "reclaimed"
)

// IsTerminal reports whether no further transition is allowed.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingComplete || s == BookingReclaimed
}

// Booking is one escrowed deposit for a time-metered session.
// Only Status changes after creation.
type Booking struct {
	ID            uint64        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	User          string        `gorm:"size:128;not null;index" json:"user"`
	Expert        string        `gorm:"size:128;not null;index" json:"expert"`
	RatePerSecond int64         `gorm:"not null" json:"rate_per_second"`
	MaxDuration   uint64        `gorm:"not null" json:"max_duration"`
	TotalDeposit  int64         `gorm:"not null" json:"total_deposit"`
	Status        BookingStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
}
