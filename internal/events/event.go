// Package events carries escrow domain events to downstream consumers.
package events

import (
	"context"
	"time"

	"session-escrow-backend/internal/model"
)

// Type names a domain event.
type Type string

const (
	BookingCreated   Type = "booking_created"
	SessionFinalized Type = "session_finalized"
	SessionReclaimed Type = "session_reclaimed"
)

// Event is one committed state change of a booking.
//
// Amount is the deposit for BookingCreated, the expert payout for
// SessionFinalized and the refunded deposit for SessionReclaimed.
type Event struct {
	Seq            uint64    `json:"seq"`
	Type           Type      `json:"type"`
	BookingID      uint64    `json:"booking_id"`
	User           string    `json:"user"`
	Expert         string    `json:"expert"`
	Amount         int64     `json:"amount"`
	ActualDuration uint64    `json:"actual_duration,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher delivers committed events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// FromLog converts a persisted event log row.
func FromLog(row model.EventLog) Event {
	return Event{
		Seq:            row.Seq,
		Type:           Type(row.Type),
		BookingID:      row.BookingID,
		User:           row.User,
		Expert:         row.Expert,
		Amount:         row.Amount,
		ActualDuration: row.ActualDuration,
		OccurredAt:     row.OccurredAt,
	}
}

// Row converts the event into its persisted form.
func (e Event) Row() model.EventLog {
	return model.EventLog{
		Seq:            e.Seq,
		Type:           string(e.Type),
		BookingID:      e.BookingID,
		User:           e.User,
		Expert:         e.Expert,
		Amount:         e.Amount,
		ActualDuration: e.ActualDuration,
		OccurredAt:     e.OccurredAt,
	}
}
