package store

import (
	"context"
	"fmt"

	"session-escrow-backend/internal/model"
)

// AppendEvent adds an entry to the event log and fills in its sequence number.
func (s *gormStore) AppendEvent(ctx context.Context, ev *model.EventLog) error {
	if err := s.conn(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.Type, err)
	}
	return nil
}

// ListEvents returns up to limit entries with a sequence number above after.
func (s *gormStore) ListEvents(ctx context.Context, after uint64, limit int) ([]model.EventLog, error) {
	if limit <= 0 {
		limit = DefaultEventPageSize
	}
	events := make([]model.EventLog, 0)
	err := s.conn(ctx).
		Where("seq > ?", after).
		Order("seq").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}
