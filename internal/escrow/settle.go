package escrow

import (
	"math"
	"math/bits"
	"time"

	"session-escrow-backend/internal/model"
)

// ReclaimTimeout is how long a pending booking waits for the oracle before
// its user may take the deposit back.
const ReclaimTimeout = 24 * time.Hour

// Deposit returns rate * maxDuration, the amount escrowed for a booking.
func Deposit(rate int64, maxDuration uint64) (int64, error) {
	if rate <= 0 {
		return 0, ErrInvalidAmount
	}
	total, ok := mul(rate, maxDuration)
	if !ok || total <= 0 {
		return 0, ErrInvalidAmount
	}
	return total, nil
}

// Split divides the deposit of b for a session that lasted actual seconds.
// expertPay + refund always equals b.TotalDeposit.
func Split(b *model.Booking, actual uint64) (expertPay, refund int64, err error) {
	expertPay, ok := mul(b.RatePerSecond, actual)
	if !ok || expertPay < 0 {
		return 0, 0, ErrInvalidAmount
	}
	refund = b.TotalDeposit - expertPay
	if refund < 0 {
		return 0, 0, ErrInvalidAmount
	}
	return expertPay, refund, nil
}

// Reclaimable reports whether the reclaim timeout has strictly elapsed.
func Reclaimable(createdAt, now time.Time) bool {
	return now.Unix() > createdAt.Unix()+int64(ReclaimTimeout/time.Second)
}

// mul multiplies a non-negative rate by n, reporting false on overflow.
func mul(rate int64, n uint64) (int64, bool) {
	if rate < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(rate), n)
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}
