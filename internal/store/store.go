package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"session-escrow-backend/internal/db"
	"session-escrow-backend/internal/model"
)

// Store defines the interface for all database operations.
//
// Every method runs on the transaction carried by ctx when there is one, so
// a sequence of calls inside Transaction commits or rolls back as a unit.
type Store interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	Ping(ctx context.Context) error
	DB() *gorm.DB

	CreateVaultConfig(ctx context.Context, cfg *model.VaultConfig) error
	GetVaultConfig(ctx context.Context) (*model.VaultConfig, error)

	NextBookingID(ctx context.Context) (uint64, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id uint64) (*model.Booking, error)
	TransitionBooking(ctx context.Context, id uint64, from, to model.BookingStatus) error
	AppendBookingIndex(ctx context.Context, party string, role model.PartyRole, bookingID uint64) error
	ListBookingIDs(ctx context.Context, party string, role model.PartyRole) ([]uint64, error)

	AppendEvent(ctx context.Context, ev *model.EventLog) error
	ListEvents(ctx context.Context, after uint64, limit int) ([]model.EventLog, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, party, endpoint string) (*model.PushSubscription, error)
	ListSubscriptions(ctx context.Context, party string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, party, endpoint string) error
	DeleteExpiredSubscription(ctx context.Context, endpoint string) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(gdb *gorm.DB) Store {
	return &gormStore{db: gdb}
}

func (s *gormStore) conn(ctx context.Context) *gorm.DB {
	return db.Conn(ctx, s.db)
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// Transaction runs fn in a single database transaction.
func (s *gormStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.Transaction(ctx, s.db, fn)
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// CreateVaultConfig stores the singleton configuration row.
func (s *gormStore) CreateVaultConfig(ctx context.Context, cfg *model.VaultConfig) error {
	cfg.ID = model.VaultConfigID
	return s.Transaction(ctx, func(ctx context.Context) error {
		tx := s.conn(ctx)

		var count int64
		if err := tx.Model(&model.VaultConfig{}).Where("id = ?", model.VaultConfigID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check vault config: %w", err)
		}
		if count > 0 {
			return ErrAlreadyExists
		}

		if err := tx.Create(cfg).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("failed to create vault config: %w", err)
		}
		return nil
	})
}

func (s *gormStore) GetVaultConfig(ctx context.Context) (*model.VaultConfig, error) {
	var cfg model.VaultConfig
	if err := s.conn(ctx).First(&cfg, "id = ?", model.VaultConfigID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load vault config: %w", err)
	}
	return &cfg, nil
}
