package events

import (
	"context"
	"errors"

	"session-escrow-backend/internal/logger"
)

// Fanout publishes every event to all of its publishers. A failing publisher
// does not stop the others; their errors are joined.
type Fanout struct {
	publishers []Publisher
}

func NewFanout(publishers ...Publisher) *Fanout {
	return &Fanout{publishers: publishers}
}

// Add registers another publisher.
func (f *Fanout) Add(p Publisher) {
	f.publishers = append(f.publishers, p)
}

func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the application log.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.Info("event",
		"seq", ev.Seq,
		"type", ev.Type,
		"booking_id", ev.BookingID,
		"user", ev.User,
		"expert", ev.Expert,
		"amount", ev.Amount,
		"actual_duration", ev.ActualDuration,
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
