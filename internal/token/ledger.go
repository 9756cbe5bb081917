// Package token is the balance ledger the escrow moves value through.
package token

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"session-escrow-backend/internal/db"
	"session-escrow-backend/internal/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// Transferer moves an amount of a token between two accounts.
type Transferer interface {
	Transfer(ctx context.Context, token, from, to string, amount int64) error
}

// Ledger is a gorm-backed multi-asset balance table. Calls made with a
// context carrying a transaction join that transaction.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(gdb *gorm.DB) *Ledger {
	return &Ledger{db: gdb}
}

// Transfer debits from and credits to in one transaction.
func (l *Ledger) Transfer(ctx context.Context, token, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return db.Transaction(ctx, l.db, func(ctx context.Context) error {
		if err := l.debit(ctx, token, from, amount); err != nil {
			return err
		}
		return l.credit(ctx, token, to, amount)
	})
}

// Mint creates amount out of thin air on the to account.
func (l *Ledger) Mint(ctx context.Context, token, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	return db.Transaction(ctx, l.db, func(ctx context.Context) error {
		return l.credit(ctx, token, to, amount)
	})
}

// Balance returns the holdings of account, zero when it never held token.
func (l *Ledger) Balance(ctx context.Context, token, account string) (int64, error) {
	var bal model.Balance
	err := db.Conn(ctx, l.db).First(&bal, "token = ? AND account = ?", token, account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance of %s: %w", account, err)
	}
	return bal.Amount, nil
}

func (l *Ledger) debit(ctx context.Context, token, account string, amount int64) error {
	res := db.Conn(ctx, l.db).Model(&model.Balance{}).
		Where("token = ? AND account = ? AND amount >= ?", token, account, amount).
		Update("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		return fmt.Errorf("failed to debit %s: %w", account, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("debit %d from %s: %w", amount, account, ErrInsufficientBalance)
	}
	return nil
}

func (l *Ledger) credit(ctx context.Context, token, account string, amount int64) error {
	bal := model.Balance{Token: token, Account: account, Amount: amount}
	err := db.Conn(ctx, l.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "token"}, {Name: "account"}},
		DoUpdates: clause.Assignments(map[string]any{
			"amount":     gorm.Expr("balances.amount + ?", amount),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&bal).Error
	if err != nil {
		return fmt.Errorf("failed to credit %s: %w", account, err)
	}
	return nil
}
