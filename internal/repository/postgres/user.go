package postgres

import (
	"context"
	"database/sql"
	"time"

	"reseller-ledger/internal/domain"
	"reseller-ledger/internal/repository"
)

const userColumns = `id, name, phone, role, created_by, pin_hash, active, created_at`

type userRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) repository.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (name, phone, role, created_by, pin_hash, active, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	u.CreatedAt = time.Now().UTC()
	err := r.db.QueryRowContext(ctx, query, u.Name, u.Phone, u.Role, u.CreatedBy, u.PINHash, u.Active, u.CreatedAt).Scan(&u.ID)
	return mapError(err)
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepository) FirstActiveAdmin(ctx context.Context) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          WHERE role IN ('admin', 'superadmin') AND active = TRUE ORDER BY id LIMIT 1`
	return scanUser(r.db.QueryRowContext(ctx, query))
}

func (r *userRepository) UpdatePINHash(ctx context.Context, id int64, pinHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET pin_hash = $1 WHERE id = $2`, pinHash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	u := &domain.User{}
	var createdBy sql.NullInt64
	err := row.Scan(&u.ID, &u.Name, &u.Phone, &u.Role, &createdBy, &u.PINHash, &u.Active, &u.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if createdBy.Valid {
		parent := createdBy.Int64
		u.CreatedBy = &parent
	}
	return u, nil
}

// requireAffected turns an update that matched no row into ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
