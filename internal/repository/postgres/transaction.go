package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

const txnColumns = `id, service, user_id, amount, charge, status, gateway_reference, gateway_response,
	commission_status, needs_reconciliation, params, created_at, updated_at`

type businessTransactionRepository struct {
	db DBTX
}

func NewBusinessTransactionRepository(db DBTX) repository.BusinessTransactionRepository {
	return &businessTransactionRepository{db: db}
}

func (r *businessTransactionRepository) Create(ctx context.Context, t *domain.BusinessTransaction) error {
	params, err := encodeParams(t.Params)
	if err != nil {
		return err
	}
	query := `INSERT INTO business_transactions
	              (id, service, user_id, amount, charge, status, gateway_reference, gateway_response,
	               commission_status, needs_reconciliation, params, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	_, err = r.db.ExecContext(ctx, query,
		t.ID, t.Service, t.UserID, t.Amount, t.Charge, t.Status, t.GatewayReference, nullJSON(t.GatewayResponse),
		t.CommissionStatus, t.NeedsReconciliation, params, t.CreatedAt, t.UpdatedAt,
	)
	return mapError(err)
}

func (r *businessTransactionRepository) GetByID(ctx context.Context, id string) (*domain.BusinessTransaction, error) {
	if !validTxnID(id) {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + txnColumns + ` FROM business_transactions WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *businessTransactionRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.BusinessTransaction, error) {
	if !validTxnID(id) {
		return nil, repository.ErrNotFound
	}
	query := `SELECT ` + txnColumns + ` FROM business_transactions WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, query, id)
}

func (r *businessTransactionRepository) Update(ctx context.Context, t *domain.BusinessTransaction) error {
	query := `UPDATE business_transactions
	          SET status = $1, gateway_reference = $2, gateway_response = $3, commission_status = $4,
	              needs_reconciliation = $5, updated_at = $6
	          WHERE id = $7`
	t.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, query,
		t.Status, t.GatewayReference, nullJSON(t.GatewayResponse), t.CommissionStatus,
		t.NeedsReconciliation, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *businessTransactionRepository) ListByStatus(ctx context.Context, status domain.TxnStatus, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM business_transactions
	          WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`
	return r.list(ctx, query, status, updatedBefore, limit)
}

func (r *businessTransactionRepository) ListCommissionBacklog(ctx context.Context, updatedBefore time.Time, limit int) ([]domain.BusinessTransaction, error) {
	query := `SELECT ` + txnColumns + ` FROM business_transactions
	          WHERE status = 'success' AND commission_status IN ('pending', 'failed') AND updated_at < $1
	          ORDER BY updated_at LIMIT $2`
	return r.list(ctx, query, updatedBefore, limit)
}

func (r *businessTransactionRepository) getOne(ctx context.Context, query string, args ...any) (*domain.BusinessTransaction, error) {
	txns, err := r.list(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(txns) == 0 {
		return nil, repository.ErrNotFound
	}
	return &txns[0], nil
}

func (r *businessTransactionRepository) list(ctx context.Context, query string, args ...any) ([]domain.BusinessTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.BusinessTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func scanTransaction(rows *sql.Rows) (*domain.BusinessTransaction, error) {
	t := &domain.BusinessTransaction{}
	var response, params []byte
	if err := rows.Scan(
		&t.ID, &t.Service, &t.UserID, &t.Amount, &t.Charge, &t.Status, &t.GatewayReference, &response,
		&t.CommissionStatus, &t.NeedsReconciliation, &params, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if len(response) > 0 {
		t.GatewayResponse = json.RawMessage(response)
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, fmt.Errorf("failed to decode params of transaction %s: %w", t.ID, err)
		}
	}
	return t, nil
}

// JSONB values are passed as strings; lib/pq would send []byte as bytea.
func encodeParams(params map[string]string) (string, error) {
	if params == nil {
		return "{}", nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode params: %w", err)
	}
	return string(b), nil
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// validTxnID reports whether id can name a row at all. The id column is a
// UUID, and anything else would fail the query with SQLSTATE 22P02.
func validTxnID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
