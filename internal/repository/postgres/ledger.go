package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

const ledgerColumns = `id, wallet_id, amount, type, category, description, actor_id, business_txn_id, reference, balance_after, status, created_at`

type ledgerRepository struct {
	db DBTX
}

func NewLedgerRepository(db DBTX) repository.LedgerRepository {
	return &ledgerRepository{db: db}
}

func (r *ledgerRepository) Create(ctx context.Context, e *domain.LedgerEntry) error {
	query := `INSERT INTO ledger_entries (wallet_id, amount, type, category, description, actor_id, business_txn_id, reference, balance_after, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`
	e.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		e.WalletID, e.Amount, e.Type, e.Category, e.Description, e.ActorID,
		e.BusinessTxnID, e.Reference, e.BalanceAfter, e.Status, e.CreatedAt,
	).Scan(&e.ID)
	return mapError(err)
}

func (r *ledgerRepository) ListByWallet(ctx context.Context, walletID int64, page, pageSize int32) ([]domain.LedgerEntry, int32, error) {
	offset := (page - 1) * pageSize
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries
	          WHERE wallet_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, walletID, pageSize, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanLedgerEntries(rows)
	if err != nil {
		return nil, 0, err
	}

	var count int32
	countQuery := `SELECT count(*) FROM ledger_entries WHERE wallet_id = $1`
	if err := r.db.QueryRowContext(ctx, countQuery, walletID).Scan(&count); err != nil {
		return nil, 0, err
	}
	return entries, count, nil
}

func (r *ledgerRepository) ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE business_txn_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, businessTxnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func (r *ledgerRepository) SumByWallet(ctx context.Context, walletID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	query := `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_id = $1 AND status = 'success'`
	err := r.db.QueryRowContext(ctx, query, walletID).Scan(&sum)
	return sum, err
}

func scanLedgerEntries(rows *sql.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var txnID sql.NullString
		if err := rows.Scan(
			&e.ID, &e.WalletID, &e.Amount, &e.Type, &e.Category, &e.Description, &e.ActorID,
			&txnID, &e.Reference, &e.BalanceAfter, &e.Status, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if txnID.Valid {
			id := txnID.String
			e.BusinessTxnID = &id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
