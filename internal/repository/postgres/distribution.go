package postgres

import (
	"context"
	"time"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

type distributionRepository struct {
	db DBTX
}

func NewDistributionRepository(db DBTX) repository.DistributionRepository {
	return &distributionRepository{db: db}
}

func (r *distributionRepository) Create(ctx context.Context, rec *domain.CommissionDistributionRecord) error {
	query := `INSERT INTO commission_distribution_records
	              (business_txn_id, rate_id, recipient_id, role, amount, original_amount, reference, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`
	rec.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		rec.BusinessTxnID, rec.RateID, rec.RecipientID, rec.Role,
		rec.Amount, rec.OriginalAmount, rec.Reference, rec.CreatedAt,
	).Scan(&rec.ID)
	return mapError(err)
}

func (r *distributionRepository) Exists(ctx context.Context, businessTxnID string, role domain.Role) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM commission_distribution_records WHERE business_txn_id = $1 AND role = $2)`
	err := r.db.QueryRowContext(ctx, query, businessTxnID, role).Scan(&exists)
	return exists, err
}

func (r *distributionRepository) ListByBusinessTxn(ctx context.Context, businessTxnID string) ([]domain.CommissionDistributionRecord, error) {
	query := `SELECT id, business_txn_id, rate_id, recipient_id, role, amount, original_amount, reference, created_at
	          FROM commission_distribution_records WHERE business_txn_id = $1 ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, businessTxnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.CommissionDistributionRecord
	for rows.Next() {
		var rec domain.CommissionDistributionRecord
		if err := rows.Scan(
			&rec.ID, &rec.BusinessTxnID, &rec.RateID, &rec.RecipientID, &rec.Role,
			&rec.Amount, &rec.OriginalAmount, &rec.Reference, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
