package repository

import (
	"context"
	"database/sql"

	"claims-portal/backend/internal/db"
	"claims-portal/backend/internal/policy/domain"
)

// PostgresRepository loads workflow policies from the policies table.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns a policy repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// GetEnabledPolicies returns all enabled policies ordered by creation time.
func (r *PostgresRepository) GetEnabledPolicies(ctx context.Context) ([]*domain.Policy, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, name, rules, enabled, created_at, updated_at
		FROM policies WHERE enabled ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create inserts the policy; an existing row with the same id is left untouched
// so seeding stays idempotent.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO policies (id, name, rules, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt, p.UpdatedAt)
	return err
}
