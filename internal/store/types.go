package store

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned when a write-once record is written twice.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrStatusConflict is returned when a booking is no longer in the
	// status a transition expects.
	ErrStatusConflict = errors.New("booking status changed concurrently")
)

// bookingCounter names the counter row that allocates booking ids.
const bookingCounter = "booking_id"

// DefaultEventPageSize bounds ListEvents when the caller passes no limit.
const DefaultEventPageSize = 100
