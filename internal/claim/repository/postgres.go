package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"claims-portal/backend/internal/claim/domain"
	"claims-portal/backend/internal/db"
)

const claimColumns = `id, claimant_name, claimant_id, email, phone, address,
	claim_type, claim_amount, incident_date, incident_location, description,
	status, submitted_at, updated_at`

// PostgresRepository persists claims in the claims and claim_documents tables.
type PostgresRepository struct {
	q db.DBTX
}

// NewPostgresRepository returns a claim repository that uses the given db.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{q: conn}
}

// WithTx returns a copy of the repository bound to tx.
func (r *PostgresRepository) WithTx(tx *sql.Tx) Repository {
	return &PostgresRepository{q: tx}
}

// Create persists the claim and its supporting documents.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Claim) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.ClaimantName, c.ClaimantID, c.Email, c.Phone, c.Address,
		string(c.ClaimType), c.Amount, c.IncidentDate, c.IncidentLocation, c.Description,
		string(c.Status), c.SubmittedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	for _, d := range c.Documents {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO claim_documents (id, claim_id, file_name, url, added_at)
			VALUES ($1, $2, $3, $4, $5)`,
			d.ID, c.ID, d.FileName, d.URL, d.AddedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
	}
	return nil
}

// GetByID returns the claim with its documents, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Claim, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	docs, err := r.documents(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Documents = docs
	return c, nil
}

// List returns claims ordered by submission time descending.
func (r *PostgresRepository) List(ctx context.Context, status *domain.Status, limit, offset int) ([]*domain.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM claims`
	args := []any{}
	if status != nil {
		query += ` WHERE status = $1`
		args = append(args, string(*status))
	}
	query += ` ORDER BY submitted_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateStatusCAS applies the transition only when the stored status still equals
// from. Zero rows affected means a concurrent writer got there first; the caller
// re-reads and decides between no-op success and StaleState.
func (r *PostgresRepository) UpdateStatusCAS(ctx context.Context, id string, from, to domain.Status, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE claims SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to), at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Stats returns total and per-status claim counts in a single scan.
func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM claims GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var s Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		s.Total += n
		switch domain.Status(status) {
		case domain.StatusPending:
			s.Pending = n
		case domain.StatusReviewing:
			s.Reviewing = n
		case domain.StatusApproved:
			s.Approved = n
		case domain.StatusConfirmed:
			s.Confirmed = n
		case domain.StatusPaymentPending:
			s.PaymentPending = n
		case domain.StatusPaid:
			s.Paid = n
		case domain.StatusRejected:
			s.Rejected = n
		}
	}
	return &s, rows.Err()
}

// Recent returns the most recently updated claims.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]*domain.Claim, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claims ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) documents(ctx context.Context, claimID string) ([]domain.Document, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, claim_id, file_name, url, added_at
		FROM claim_documents WHERE claim_id = $1 ORDER BY added_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.ClaimID, &d.FileName, &d.URL, &d.AddedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	var c domain.Claim
	var claimType, status string
	err := row.Scan(&c.ID, &c.ClaimantName, &c.ClaimantID, &c.Email, &c.Phone, &c.Address,
		&claimType, &c.Amount, &c.IncidentDate, &c.IncidentLocation, &c.Description,
		&status, &c.SubmittedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ClaimType = domain.ClaimType(claimType)
	c.Status = domain.Status(status)
	return &c, nil
}
