package repository

import (
	"context"
	"database/sql"

	"claims-portal/backend/internal/audit/domain"
	"claims-portal/backend/internal/db"
)

// PostgresRepository persists audit entries in the audit_logs table.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns an audit repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// Create persists the audit entry. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AuditLog) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource, ip, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.UserID, e.Action, e.Resource, e.IP, e.Metadata, e.CreatedAt)
	return err
}

// ListRecent returns the newest entries, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.IP, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
