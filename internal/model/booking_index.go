package model

// PartyRole tells which side of a booking an index entry belongs to.
type PartyRole string

const (
	RoleUser   PartyRole = "user"
	RoleExpert PartyRole = "expert"
)

// BookingIndex is an append-only entry of a party's booking list.
// Entries are never pruned, so a party's list grows with every booking it
// takes part in.
type BookingIndex struct {
	ID        uint64    `gorm:"primaryKey"`
	Party     string    `gorm:"size:128;not null;index:idx_booking_index_party_role,priority:1"`
	Role      PartyRole `gorm:"size:16;not null;index:idx_booking_index_party_role,priority:2"`
	BookingID uint64    `gorm:"not null"`
}
