package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"session-escrow-backend/internal/model"
)

// NextBookingID increments the booking counter and returns the new value.
// The first id is 1. Called inside a transaction, a rollback gives the id back.
func (s *gormStore) NextBookingID(ctx context.Context) (uint64, error) {
	tx := s.conn(ctx)

	res := tx.Model(&model.Counter{}).
		Where("name = ?", bookingCounter).
		Update("value", gorm.Expr("value + ?", 1))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to advance booking counter: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		if err := tx.Create(&model.Counter{Name: bookingCounter, Value: 1}).Error; err != nil {
			return 0, fmt.Errorf("failed to create booking counter: %w", err)
		}
		return 1, nil
	}

	var counter model.Counter
	if err := tx.First(&counter, "name = ?", bookingCounter).Error; err != nil {
		return 0, fmt.Errorf("failed to read booking counter: %w", err)
	}
	return counter.Value, nil
}

func (s *gormStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	if err := s.conn(ctx).Create(b).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create booking %d: %w", b.ID, err)
	}
	return nil
}

func (s *gormStore) GetBooking(ctx context.Context, id uint64) (*model.Booking, error) {
	var b model.Booking
	if err := s.conn(ctx).First(&b, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load booking %d: %w", id, err)
	}
	return &b, nil
}

// TransitionBooking moves a booking from one status to another. It fails with
// ErrStatusConflict when the booking is not in the from status anymore.
func (s *gormStore) TransitionBooking(ctx context.Context, id uint64, from, to model.BookingStatus) error {
	res := s.conn(ctx).Model(&model.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("failed to update booking %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *gormStore) AppendBookingIndex(ctx context.Context, party string, role model.PartyRole, bookingID uint64) error {
	entry := model.BookingIndex{Party: party, Role: role, BookingID: bookingID}
	if err := s.conn(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to index booking %d for %s %s: %w", bookingID, role, party, err)
	}
	return nil
}

// ListBookingIDs returns the bookings of a party in creation order.
func (s *gormStore) ListBookingIDs(ctx context.Context, party string, role model.PartyRole) ([]uint64, error) {
	ids := make([]uint64, 0)
	err := s.conn(ctx).Model(&model.BookingIndex{}).
		Where("party = ? AND role = ?", party, role).
		Order("id").
		Pluck("booking_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings of %s %s: %w", role, party, err)
	}
	return ids, nil
}
