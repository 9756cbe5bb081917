package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/SherClockHolmes/webpush-go"

	"session-escrow-backend/internal/events"
	"session-escrow-backend/internal/logger"
	"session-escrow-backend/internal/model"
	"session-escrow-backend/internal/store"
)

var (
	// ErrPoolClosed is returned by Publish after Close.
	ErrPoolClosed = errors.New("notification pool is closed")
	// ErrQueueFull is returned when the workers are behind and ev was dropped.
	ErrQueueFull = errors.New("notification queue is full")
)

// queuePerWorker bounds the pending notifications per worker.
const queuePerWorker = 64

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Payload is the JSON body delivered to the browser.
type Payload struct {
	Title     string      `json:"title"`
	Body      string      `json:"body"`
	Type      events.Type `json:"type"`
	BookingID uint64      `json:"booking_id"`
}

// WorkerPool turns booking events into web push notifications for the
// parties involved. It implements events.Publisher.
type WorkerPool struct {
	size    int
	jobs    chan events.Event
	store   store.Store
	webpush *webpush.Options
	sender  NotificationSender
	log     *logger.Logger

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(size int, s store.Store, webpushOptions *webpush.Options, log *logger.Logger) *WorkerPool {
	return &WorkerPool{
		size:    size,
		jobs:    make(chan events.Event, size*queuePerWorker),
		store:   s,
		webpush: webpushOptions,
		sender:  &WebPushSender{}, // Use the real sender by default
		log:     log.With("component", "notification"),
		quit:    make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.log.Debug("worker started", "worker", id)
	for {
		select {
		case ev := <-wp.jobs:
			wp.log.Debug("worker processing event", "worker", id, "type", ev.Type, "booking_id", ev.BookingID)
			wp.notify(ctx, ev)
		case <-ctx.Done():
			wp.log.Debug("worker shutting down", "worker", id)
			return
		case <-wp.quit:
			return
		}
	}
}

// Publish queues ev for delivery without blocking. Vault operations call it
// after commit, so a full queue drops the event; the event log still has it.
func (wp *WorkerPool) Publish(_ context.Context, ev events.Event) error {
	select {
	case <-wp.quit:
		return ErrPoolClosed
	default:
	}

	select {
	case wp.jobs <- ev:
		return nil
	default:
		wp.log.Warn("notification queue full, dropping event", "type", ev.Type, "booking_id", ev.BookingID)
		return ErrQueueFull
	}
}

// Close stops the workers and waits for them to exit.
func (wp *WorkerPool) Close() error {
	wp.quitOnce.Do(func() { close(wp.quit) })
	wp.wg.Wait()
	return nil
}

// Recipients returns the parties notified about ev.
func Recipients(ev events.Event) []string {
	switch ev.Type {
	case events.BookingCreated, events.SessionReclaimed:
		return []string{ev.Expert}
	case events.SessionFinalized:
		if ev.User == ev.Expert {
			return []string{ev.User}
		}
		return []string{ev.User, ev.Expert}
	default:
		return nil
	}
}

// Message renders the human readable notification text for ev.
func Message(ev events.Event) string {
	switch ev.Type {
	case events.BookingCreated:
		return fmt.Sprintf("New booking #%d from %s, deposit %d", ev.BookingID, ev.User, ev.Amount)
	case events.SessionFinalized:
		return fmt.Sprintf("Booking #%d settled after %d seconds, expert paid %d", ev.BookingID, ev.ActualDuration, ev.Amount)
	case events.SessionReclaimed:
		return fmt.Sprintf("Booking #%d was reclaimed by %s", ev.BookingID, ev.User)
	default:
		return fmt.Sprintf("Booking #%d updated", ev.BookingID)
	}
}

func (wp *WorkerPool) notify(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(Payload{
		Title:     "Session escrow",
		Body:      Message(ev),
		Type:      ev.Type,
		BookingID: ev.BookingID,
	})
	if err != nil {
		wp.log.Error("failed to encode notification", "booking_id", ev.BookingID, "error", err)
		return
	}

	for _, party := range Recipients(ev) {
		subscriptions, err := wp.store.ListSubscriptions(ctx, party)
		if err != nil {
			wp.log.Error("failed to fetch subscriptions", "party", party, "error", err)
			continue
		}
		if len(subscriptions) == 0 {
			continue
		}

		wp.log.Info("sending notifications", "count", len(subscriptions), "party", party, "booking_id", ev.BookingID)
		for _, sub := range subscriptions {
			wp.sendNotification(ctx, sub, payload)
		}
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Error("failed to send notification", "endpoint", sub.Endpoint, "error", err)
		return
	}
	defer resp.Body.Close()

	// Handle expired subscriptions
	if resp.StatusCode == http.StatusGone {
		wp.log.Info("subscription expired, deleting", "endpoint", sub.Endpoint)
		if err := wp.store.DeleteExpiredSubscription(ctx, sub.Endpoint); err != nil {
			wp.log.Error("failed to delete expired subscription", "endpoint", sub.Endpoint, "error", err)
		}
	}
}
