package postgres

import (
	"context"
	"database/sql"
	"time"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

type commissionPlanRepository struct {
	db DBTX
}

func NewCommissionPlanRepository(db DBTX) repository.CommissionPlanRepository {
	return &commissionPlanRepository{db: db}
}

func (r *commissionPlanRepository) Create(ctx context.Context, p *domain.CommissionPlan) error {
	query := `INSERT INTO commission_plans (name, display_name, active, created_at)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	p.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query, p.Name, p.DisplayName, p.Active, p.CreatedAt).Scan(&p.ID)
	return mapError(err)
}

func (r *commissionPlanRepository) GetByID(ctx context.Context, id int64) (*domain.CommissionPlan, error) {
	query := `SELECT id, name, display_name, active, created_at FROM commission_plans WHERE id = $1`
	return scanPlan(r.db.QueryRowContext(ctx, query, id))
}

func (r *commissionPlanRepository) GetByName(ctx context.Context, name string) (*domain.CommissionPlan, error) {
	query := `SELECT id, name, display_name, active, created_at FROM commission_plans WHERE name = $1`
	return scanPlan(r.db.QueryRowContext(ctx, query, name))
}

func (r *commissionPlanRepository) List(ctx context.Context) ([]domain.CommissionPlan, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, display_name, active, created_at FROM commission_plans ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []domain.CommissionPlan
	for rows.Next() {
		var p domain.CommissionPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *commissionPlanRepository) AssignToUser(ctx context.Context, a *domain.UserCommissionPlan) error {
	query := `INSERT INTO user_commission_plans (user_id, plan_id, assigned_by, active, assigned_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (user_id) DO UPDATE
	          SET plan_id = EXCLUDED.plan_id, assigned_by = EXCLUDED.assigned_by,
	              active = EXCLUDED.active, assigned_at = EXCLUDED.assigned_at`
	a.AssignedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query, a.UserID, a.PlanID, a.AssignedBy, a.Active, a.AssignedAt)
	return mapError(err)
}

func (r *commissionPlanRepository) GetUserPlan(ctx context.Context, userID int64) (*domain.UserCommissionPlan, error) {
	query := `SELECT ucp.user_id, ucp.plan_id, ucp.assigned_by, ucp.active, ucp.assigned_at
	          FROM user_commission_plans ucp
	          JOIN commission_plans cp ON cp.id = ucp.plan_id
	          WHERE ucp.user_id = $1 AND ucp.active = TRUE AND cp.active = TRUE`
	a := &domain.UserCommissionPlan{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&a.UserID, &a.PlanID, &a.AssignedBy, &a.Active, &a.AssignedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func scanPlan(row *sql.Row) (*domain.CommissionPlan, error) {
	p := &domain.CommissionPlan{}
	if err := row.Scan(&p.ID, &p.Name, &p.DisplayName, &p.Active, &p.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	return p, nil
}

const rateColumns = `id, service, plan_id, basis, value, admin_share, master_share, dealer_share, retailer_share, min_amount, max_amount, active, updated_at`

type commissionRateRepository struct {
	db DBTX
}

func NewCommissionRateRepository(db DBTX) repository.CommissionRateRepository {
	return &commissionRateRepository{db: db}
}

func (r *commissionRateRepository) Save(ctx context.Context, rate *domain.ServiceCommissionRate) error {
	query := `INSERT INTO service_commission_rates
	              (service, plan_id, basis, value, admin_share, master_share, dealer_share, retailer_share, min_amount, max_amount, active, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          ON CONFLICT (service, plan_id) DO UPDATE
	          SET basis = EXCLUDED.basis, value = EXCLUDED.value,
	              admin_share = EXCLUDED.admin_share, master_share = EXCLUDED.master_share,
	              dealer_share = EXCLUDED.dealer_share, retailer_share = EXCLUDED.retailer_share,
	              min_amount = EXCLUDED.min_amount, max_amount = EXCLUDED.max_amount,
	              active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	          RETURNING id`
	rate.UpdatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query,
		rate.Service, rate.PlanID, rate.Basis, rate.Value,
		rate.AdminShare, rate.MasterShare, rate.DealerShare, rate.RetailerShare,
		rate.MinAmount, rate.MaxAmount, rate.Active, rate.UpdatedAt,
	).Scan(&rate.ID)
	return mapError(err)
}

func (r *commissionRateRepository) Get(ctx context.Context, service domain.ServiceID, planID int64) (*domain.ServiceCommissionRate, error) {
	query := `SELECT ` + rateColumns + ` FROM service_commission_rates
	          WHERE service = $1 AND plan_id = $2 AND active = TRUE`
	rows, err := r.db.QueryContext(ctx, query, service, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rates, err := scanRates(rows)
	if err != nil {
		return nil, err
	}
	if len(rates) == 0 {
		return nil, repository.ErrNotFound
	}
	return &rates[0], nil
}

func (r *commissionRateRepository) ListByPlan(ctx context.Context, planID int64) ([]domain.ServiceCommissionRate, error) {
	query := `SELECT ` + rateColumns + ` FROM service_commission_rates WHERE plan_id = $1 ORDER BY service`
	rows, err := r.db.QueryContext(ctx, query, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRates(rows)
}

func scanRates(rows *sql.Rows) ([]domain.ServiceCommissionRate, error) {
	var rates []domain.ServiceCommissionRate
	for rows.Next() {
		var rate domain.ServiceCommissionRate
		if err := rows.Scan(
			&rate.ID, &rate.Service, &rate.PlanID, &rate.Basis, &rate.Value,
			&rate.AdminShare, &rate.MasterShare, &rate.DealerShare, &rate.RetailerShare,
			&rate.MinAmount, &rate.MaxAmount, &rate.Active, &rate.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}
