package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"reseller-ledger/internal/logger"
	"reseller-ledger/internal/repository"
)

// SQLSTATE codes treated as lock conflicts worth retrying.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db         *sql.DB
	inTx       bool
	maxRetries int
	backoff    time.Duration

	users         repository.UserRepository
	wallets       repository.WalletRepository
	ledger        repository.LedgerRepository
	plans         repository.CommissionPlanRepository
	rates         repository.CommissionRateRepository
	distributions repository.DistributionRepository
	transactions  repository.BusinessTransactionRepository
}

func NewStore(db *sql.DB, maxRetries int) *Store {
	s := newStore(db, false)
	s.db = db
	s.maxRetries = maxRetries
	s.backoff = 20 * time.Millisecond
	return s
}

func newStore(q DBTX, inTx bool) *Store {
	return &Store{
		inTx:          inTx,
		users:         NewUserRepository(q),
		wallets:       NewWalletRepository(q),
		ledger:        NewLedgerRepository(q),
		plans:         NewCommissionPlanRepository(q),
		rates:         NewCommissionRateRepository(q),
		distributions: NewDistributionRepository(q),
		transactions:  NewBusinessTransactionRepository(q),
	}
}

func (s *Store) Users() repository.UserRepository                       { return s.users }
func (s *Store) Wallets() repository.WalletRepository                   { return s.wallets }
func (s *Store) Ledger() repository.LedgerRepository                    { return s.ledger }
func (s *Store) Plans() repository.CommissionPlanRepository             { return s.plans }
func (s *Store) Rates() repository.CommissionRateRepository             { return s.rates }
func (s *Store) Distributions() repository.DistributionRepository       { return s.distributions }
func (s *Store) Transactions() repository.BusinessTransactionRepository { return s.transactions }

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("Retrying transaction after lock conflict", "attempt", attempt, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}

		err = s.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsLockConflict(err) && !errors.Is(err, repository.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", repository.ErrTransient, err)
}

func (s *Store) runTx(ctx context.Context, fn func(tx repository.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newStore(tx, true)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			logger.Error("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// IsLockConflict reports whether err is a serialization failure, deadlock
// or lock timeout.
func IsLockConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch string(pqErr.Code) {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return true
	}
	return false
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == codeUniqueViolation {
		return fmt.Errorf("%w: %s", repository.ErrDuplicate, pqErr.Constraint)
	}
	return err
}
