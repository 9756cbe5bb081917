package escrow

import "time"

// Clock supplies the current time. It is consulted only for the reclaim
// timeout and for record timestamps.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
