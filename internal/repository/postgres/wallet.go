package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

type walletRepository struct {
	db DBTX
}

func NewWalletRepository(db DBTX) repository.WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) Create(ctx context.Context, w *domain.Wallet) error {
	query := `INSERT INTO wallets (user_id, balance, created_at, updated_at)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	now := time.Now().UTC()
	w.CreatedAt = now
	w.UpdatedAt = now
	err := r.db.QueryRowContext(ctx, query, w.UserID, w.Balance, w.CreatedAt, w.UpdatedAt).Scan(&w.ID)
	return mapError(err)
}

func (r *walletRepository) GetByUserID(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`
	return scanWallet(r.db.QueryRowContext(ctx, query, userID))
}

func (r *walletRepository) GetByUserIDForUpdate(ctx context.Context, userID int64) (*domain.Wallet, error) {
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE`
	return scanWallet(r.db.QueryRowContext(ctx, query, userID))
}

func (r *walletRepository) UpdateBalance(ctx context.Context, walletID int64, balance decimal.Decimal) error {
	query := `UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, balance, time.Now().UTC(), walletID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *walletRepository) List(ctx context.Context, afterID int64, limit int) ([]domain.Wallet, error) {
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE id > $1 ORDER BY id LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

func scanWallet(row *sql.Row) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	if err := row.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, mapError(err)
	}
	return w, nil
}
