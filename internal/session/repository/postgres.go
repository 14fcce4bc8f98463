package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/backend/internal/session/domain"
)

// PostgresRepository persists sessions via pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository returns a session repository that uses the given pool for persistence.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, ip_address, user_agent, device_type, login_method,
	is_active, last_activity, created_at, expires_at`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// ListActiveByUser returns the user's active sessions, most recently active first.
func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND is_active
		ORDER BY last_activity DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, s.ID, s.UserID, s.IPAddress, s.UserAgent, string(s.DeviceType), string(s.LoginMethod),
		s.IsActive, s.LastActivity, s.CreatedAt, s.ExpiresAt)
	return err
}

// Deactivate marks the session inactive. Deactivation is terminal.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET is_active = FALSE WHERE id = $1`, id)
	return err
}

// DeactivateAllByUser deactivates the user's active sessions, optionally
// keeping one. Returns the number deactivated.
func (r *PostgresRepository) DeactivateAllByUser(ctx context.Context, userID, exceptID string) (int, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET is_active = FALSE
		WHERE user_id = $1 AND is_active AND ($2 = '' OR id <> $2)
	`, userID, exceptID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// UpdateLastActivity sets the session's last-activity timestamp for the given id.
func (r *PostgresRepository) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE sessions SET last_activity = $2 WHERE id = $1`, id, at)
	return err
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	var deviceType, loginMethod string
	err := row.Scan(&s.ID, &s.UserID, &s.IPAddress, &s.UserAgent, &deviceType, &loginMethod,
		&s.IsActive, &s.LastActivity, &s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	s.DeviceType = domain.DeviceType(deviceType)
	s.LoginMethod = domain.LoginMethod(loginMethod)
	return &s, nil
}
