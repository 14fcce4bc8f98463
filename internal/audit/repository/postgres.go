package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/backend/internal/audit/domain"
)

// PostgresRepository persists audit logs via pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository returns an audit log repository that uses the given pool for persistence.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const auditColumns = `id, user_id, action, resource, ip, metadata, created_at`

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRow(ctx, `SELECT `+auditColumns+` FROM audit_logs WHERE id = $1`, id)
	a, err := scanAuditLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByUser returns audit logs for the user, newest first, paginated by limit and offset.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+auditColumns+` FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create persists the audit log. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.UserID, a.Action, a.Resource, a.IP, a.Metadata, a.CreatedAt)
	return err
}

func scanAuditLog(row pgx.Row) (*domain.AuditLog, error) {
	var a domain.AuditLog
	err := row.Scan(&a.ID, &a.UserID, &a.Action, &a.Resource, &a.IP, &a.Metadata, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
