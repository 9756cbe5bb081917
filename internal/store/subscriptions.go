package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"session-escrow-backend/internal/model"
)

// SaveSubscription creates or replaces the subscription keyed by its endpoint.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"party", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, party, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.conn(ctx).First(&sub, "endpoint = ? AND party = ?", endpoint, party).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &sub, nil
}

func (s *gormStore) ListSubscriptions(ctx context.Context, party string) ([]model.PushSubscription, error) {
	subs := make([]model.PushSubscription, 0)
	if err := s.conn(ctx).Where("party = ?", party).Order("created_at").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions of %s: %w", party, err)
	}
	return subs, nil
}

// DeleteSubscription removes a subscription owned by party.
func (s *gormStore) DeleteSubscription(ctx context.Context, party, endpoint string) error {
	res := s.conn(ctx).Where("endpoint = ? AND party = ?", endpoint, party).Delete(&model.PushSubscription{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredSubscription removes a subscription the push service rejected.
func (s *gormStore) DeleteExpiredSubscription(ctx context.Context, endpoint string) error {
	if err := s.conn(ctx).Where("endpoint = ?", endpoint).Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}
