// Package balance implements the token ledger: atomic debit/credit of a
// per-user balance with an append-only history of balance records.
package balance

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"storyflow/internal/domain"
)

// TxBeginner is the slice of *pgxpool.Pool the ledger needs. Tests inject a
// fake transaction through it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Result is the structured outcome of a ledger operation. Handlers respond
// from it without having to recover from a raised fault; Err carries one of
// the domain sentinels when Success is false.
type Result struct {
	Success bool
	Balance int
	Err     error
}

// Ledger mutates user balances. Every mutation runs in a single transaction
// holding a row-level lock on the user, which is the sole mechanism keeping
// two concurrent debits from both passing the sufficiency check.
type Ledger struct {
	db  TxBeginner
	log zerolog.Logger
}

func NewLedger(db TxBeginner, logger zerolog.Logger) *Ledger {
	return &Ledger{db: db, log: logger}
}

const (
	sqlLockBalance   = `select balance from users where id = $1 for update`
	sqlUpdateBalance = `update users set balance = $2 where id = $1`
	sqlInsertRecord  = `insert into balance_records (id, user_id, type, amount, balance, description, related_id)
values ($1, $2, $3, $4, $5, $6, nullif($7, ''))`
)

// Debit removes amount tokens from the user. It fails with
// domain.ErrInsufficientBalance when the locked balance is below amount and
// rolls back entirely on any failure: no partial balance write, no orphan
// record.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int, description, relatedID string) Result {
	if amount <= 0 {
		return Result{Success: false, Err: errAmountNotPositive}
	}
	return l.apply(ctx, userID, -amount, domain.BalanceConsume, description, relatedID)
}

// Credit adds amount tokens to the user. typ distinguishes refunds from
// recharges and the other positive entry kinds.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int, typ domain.BalanceRecordType, description, relatedID string) Result {
	if amount <= 0 {
		return Result{Success: false, Err: errAmountNotPositive}
	}
	return l.apply(ctx, userID, amount, typ, description, relatedID)
}

// Refund credits amount back after a failed paid operation.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int, description, relatedID string) Result {
	return l.Credit(ctx, userID, amount, domain.BalanceRefund, description, relatedID)
}

var errAmountNotPositive = errors.New("amount must be positive")

func (l *Ledger) apply(ctx context.Context, userID string, delta int, typ domain.BalanceRecordType, description, relatedID string) Result {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("ledger: begin failed")
		return Result{Success: false, Err: err}
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var current int
	if err := tx.QueryRow(ctx, sqlLockBalance, userID).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Result{Success: false, Err: domain.ErrUserNotFound}
		}
		l.log.Error().Err(err).Str("user_id", userID).Msg("ledger: lock failed")
		return Result{Success: false, Err: err}
	}

	newBalance := current + delta
	if newBalance < 0 {
		return Result{Success: false, Err: domain.ErrInsufficientBalance}
	}

	if _, err := tx.Exec(ctx, sqlUpdateBalance, userID, newBalance); err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("ledger: balance update failed")
		return Result{Success: false, Err: err}
	}

	if _, err := tx.Exec(ctx, sqlInsertRecord,
		uuid.NewString(), userID, string(typ), delta, newBalance, description, relatedID,
	); err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("ledger: record insert failed")
		return Result{Success: false, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		l.log.Error().Err(err).Str("user_id", userID).Msg("ledger: commit failed")
		return Result{Success: false, Err: err}
	}

	l.log.Info().
		Str("user_id", userID).
		Str("type", string(typ)).
		Int("amount", delta).
		Int("balance", newBalance).
		Str("related_id", relatedID).
		Msg("ledger: applied")
	return Result{Success: true, Balance: newBalance}
}
