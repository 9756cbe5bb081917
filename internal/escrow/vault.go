// Package escrow holds user deposits for booked sessions and settles them
// between expert payout and user refund.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"session-escrow-backend/internal/events"
	"session-escrow-backend/internal/logger"
	"session-escrow-backend/internal/model"
	"session-escrow-backend/internal/store"
	"session-escrow-backend/internal/token"
)

// DefaultCustody is the ledger account that holds escrowed deposits.
const DefaultCustody = "vault"

// Ledger is the value-transfer service deposits move through.
type Ledger interface {
	token.Transferer
	Mint(ctx context.Context, token, to string, amount int64) error
	Balance(ctx context.Context, token, account string) (int64, error)
}

// Options tunes a Vault.
type Options struct {
	// Custody is the account that holds deposits while bookings are pending.
	Custody string
}

// Vault runs the booking state machine. Each state-changing operation is a
// single store transaction covering validation, transfers, booking writes
// and the event log entry; the event is published after commit.
type Vault struct {
	store   store.Store
	ledger  Ledger
	pub     events.Publisher
	clock   Clock
	log     *logger.Logger
	custody string
}

func NewVault(s store.Store, ledger Ledger, pub events.Publisher, clock Clock, log *logger.Logger, opts Options) *Vault {
	if clock == nil {
		clock = SystemClock{}
	}
	if opts.Custody == "" {
		opts.Custody = DefaultCustody
	}
	return &Vault{
		store:   s,
		ledger:  ledger,
		pub:     pub,
		clock:   clock,
		log:     log.With("component", "vault"),
		custody: opts.Custody,
	}
}

// Custody returns the account holding escrowed deposits.
func (v *Vault) Custody() string {
	return v.custody
}

// Initialize stores the admin, token and oracle identities. It succeeds once.
func (v *Vault) Initialize(ctx context.Context, admin, tokenID, oracle string) error {
	err := v.store.CreateVaultConfig(ctx, &model.VaultConfig{
		Admin:     admin,
		Token:     tokenID,
		Oracle:    oracle,
		CreatedAt: v.clock.Now(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrAlreadyInitialized
	}
	if err != nil {
		return err
	}
	v.log.Info("vault initialized", "admin", admin, "token", tokenID, "oracle", oracle)
	return nil
}

// GetConfig returns the configuration snapshot.
func (v *Vault) GetConfig(ctx context.Context) (*model.VaultConfig, error) {
	return v.config(ctx)
}

// BookSession escrows rate * maxDuration from user and records a pending
// booking with expert. caller must be user.
func (v *Vault) BookSession(ctx context.Context, caller, user, expert string, rate int64, maxDuration uint64) (uint64, error) {
	if err := authorizeUser(caller, user); err != nil {
		return 0, err
	}
	if err := rejectCustody(v.custody, user, expert); err != nil {
		return 0, err
	}
	deposit, err := Deposit(rate, maxDuration)
	if err != nil {
		return 0, err
	}

	var ev events.Event
	err = v.store.Transaction(ctx, func(ctx context.Context) error {
		cfg, err := v.config(ctx)
		if err != nil {
			return err
		}

		if err := v.transfer(ctx, cfg.Token, user, v.custody, deposit); err != nil {
			return err
		}

		id, err := v.store.NextBookingID(ctx)
		if err != nil {
			return err
		}
		b := &model.Booking{
			ID:            id,
			User:          user,
			Expert:        expert,
			RatePerSecond: rate,
			MaxDuration:   maxDuration,
			TotalDeposit:  deposit,
			Status:        model.BookingPending,
			CreatedAt:     v.clock.Now(),
		}
		if err := v.store.CreateBooking(ctx, b); err != nil {
			return err
		}
		if err := v.store.AppendBookingIndex(ctx, user, model.RoleUser, id); err != nil {
			return err
		}
		if err := v.store.AppendBookingIndex(ctx, expert, model.RoleExpert, id); err != nil {
			return err
		}

		ev = events.Event{
			Type:       events.BookingCreated,
			BookingID:  id,
			User:       user,
			Expert:     expert,
			Amount:     deposit,
			OccurredAt: b.CreatedAt,
		}
		return v.appendEvent(ctx, &ev)
	})
	if err != nil {
		return 0, err
	}

	v.log.Info("booking created", "booking_id", ev.BookingID, "user", user, "expert", expert, "deposit", deposit)
	v.publish(ctx, ev)
	return ev.BookingID, nil
}

// FinalizeSession settles a pending booking for a session that lasted
// actualDuration seconds. caller must be the oracle.
func (v *Vault) FinalizeSession(ctx context.Context, caller string, bookingID, actualDuration uint64) error {
	var ev events.Event
	err := v.store.Transaction(ctx, func(ctx context.Context) error {
		cfg, err := v.config(ctx)
		if err != nil {
			return err
		}
		if err := authorizeOracle(caller, cfg); err != nil {
			return err
		}

		b, err := v.booking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return ErrBookingNotPending
		}

		expertPay, refund, err := Split(b, actualDuration)
		if err != nil {
			return err
		}
		if expertPay > 0 {
			if err := v.transfer(ctx, cfg.Token, v.custody, b.Expert, expertPay); err != nil {
				return err
			}
		}
		if refund > 0 {
			if err := v.transfer(ctx, cfg.Token, v.custody, b.User, refund); err != nil {
				return err
			}
		}

		if err := v.transition(ctx, b.ID, model.BookingComplete); err != nil {
			return err
		}

		ev = events.Event{
			Type:           events.SessionFinalized,
			BookingID:      b.ID,
			User:           b.User,
			Expert:         b.Expert,
			Amount:         expertPay,
			ActualDuration: actualDuration,
			OccurredAt:     v.clock.Now(),
		}
		return v.appendEvent(ctx, &ev)
	})
	if err != nil {
		return err
	}

	v.log.Info("session finalized", "booking_id", bookingID, "actual_duration", actualDuration, "expert_pay", ev.Amount)
	v.publish(ctx, ev)
	return nil
}

// ReclaimStaleSession returns the full deposit of a booking the oracle never
// settled. caller must be user, the user who paid for the booking, and the
// reclaim timeout must have passed.
func (v *Vault) ReclaimStaleSession(ctx context.Context, caller, user string, bookingID uint64) error {
	if err := authorizeUser(caller, user); err != nil {
		return err
	}

	var ev events.Event
	err := v.store.Transaction(ctx, func(ctx context.Context) error {
		cfg, err := v.config(ctx)
		if err != nil {
			return err
		}

		b, err := v.booking(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := authorizeOwner(user, b); err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return ErrBookingNotPending
		}

		now := v.clock.Now()
		if !Reclaimable(b.CreatedAt, now) {
			return ErrReclaimTooEarly
		}

		if err := v.transfer(ctx, cfg.Token, v.custody, b.User, b.TotalDeposit); err != nil {
			return err
		}
		if err := v.transition(ctx, b.ID, model.BookingReclaimed); err != nil {
			return err
		}

		ev = events.Event{
			Type:       events.SessionReclaimed,
			BookingID:  b.ID,
			User:       b.User,
			Expert:     b.Expert,
			Amount:     b.TotalDeposit,
			OccurredAt: now,
		}
		return v.appendEvent(ctx, &ev)
	})
	if err != nil {
		return err
	}

	v.log.Info("session reclaimed", "booking_id", bookingID, "user", user, "amount", ev.Amount)
	v.publish(ctx, ev)
	return nil
}

// GetBooking returns a snapshot of one booking.
func (v *Vault) GetBooking(ctx context.Context, bookingID uint64) (*model.Booking, error) {
	return v.booking(ctx, bookingID)
}

// GetUserBookings lists the bookings user paid for, oldest first.
func (v *Vault) GetUserBookings(ctx context.Context, user string) ([]uint64, error) {
	return v.store.ListBookingIDs(ctx, user, model.RoleUser)
}

// GetExpertBookings lists the bookings made with expert, oldest first.
func (v *Vault) GetExpertBookings(ctx context.Context, expert string) ([]uint64, error) {
	return v.store.ListBookingIDs(ctx, expert, model.RoleExpert)
}

// ListEvents pages through the event log after sequence number after.
func (v *Vault) ListEvents(ctx context.Context, after uint64, limit int) ([]events.Event, error) {
	rows, err := v.store.ListEvents(ctx, after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]events.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, events.FromLog(row))
	}
	return out, nil
}

// Mint funds account with the vault's token. caller must be the admin and
// account must not be the custody account.
func (v *Vault) Mint(ctx context.Context, caller, account string, amount int64) error {
	if err := rejectCustody(v.custody, account); err != nil {
		return err
	}
	cfg, err := v.config(ctx)
	if err != nil {
		return err
	}
	if err := authorizeAdmin(caller, cfg); err != nil {
		return err
	}
	if err := v.ledger.Mint(ctx, cfg.Token, account, amount); err != nil {
		if errors.Is(err, token.ErrInvalidAmount) {
			return ErrInvalidAmount
		}
		return err
	}
	v.log.Info("minted", "account", account, "amount", amount)
	return nil
}

// Balance returns what account holds of the vault's token.
func (v *Vault) Balance(ctx context.Context, account string) (int64, error) {
	cfg, err := v.config(ctx)
	if err != nil {
		return 0, err
	}
	return v.ledger.Balance(ctx, cfg.Token, account)
}

func (v *Vault) config(ctx context.Context) (*model.VaultConfig, error) {
	cfg, err := v.store.GetVaultConfig(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotInitialized
	}
	return cfg, err
}

func (v *Vault) booking(ctx context.Context, id uint64) (*model.Booking, error) {
	b, err := v.store.GetBooking(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

func (v *Vault) transition(ctx context.Context, id uint64, to model.BookingStatus) error {
	err := v.store.TransitionBooking(ctx, id, model.BookingPending, to)
	if errors.Is(err, store.ErrStatusConflict) {
		return ErrBookingNotPending
	}
	return err
}

func (v *Vault) transfer(ctx context.Context, tokenID, from, to string, amount int64) error {
	err := v.ledger.Transfer(ctx, tokenID, from, to, amount)
	if errors.Is(err, token.ErrInvalidAmount) {
		return ErrInvalidAmount
	}
	if err != nil {
		return fmt.Errorf("transfer %d from %s to %s: %w", amount, from, to, err)
	}
	return nil
}

func (v *Vault) appendEvent(ctx context.Context, ev *events.Event) error {
	row := ev.Row()
	if err := v.store.AppendEvent(ctx, &row); err != nil {
		return err
	}
	ev.Seq = row.Seq
	return nil
}

// publish hands a committed event to the publisher. The event log already
// holds the event, so a delivery failure is only logged.
func (v *Vault) publish(ctx context.Context, ev events.Event) {
	if v.pub == nil {
		return
	}
	if err := v.pub.Publish(ctx, ev); err != nil {
		v.log.Warn("failed to publish event", "type", ev.Type, "booking_id", ev.BookingID, "error", err)
	}
}
