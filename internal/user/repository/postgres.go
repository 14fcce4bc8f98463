package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub/backend/internal/user/domain"
)

// PostgresRepository persists users via pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository returns a user repository that uses the given pool for persistence.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email, full_name, password_hash, auth_provider, provider_id, profile_pic,
	is_active, is_verified, verification_status, verification_method,
	institution_name, institution_domain, institution_type,
	has_temporary_password, last_login, login_count, created_at, updated_at`

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user for email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// Create persists the user. The user must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, u.ID, u.Email, u.FullName, u.PasswordHash, string(u.AuthProvider), u.ProviderID, u.ProfilePic,
		u.IsActive, u.IsVerified, string(u.VerificationStatus), string(u.VerificationMethod),
		u.Institution.Name, u.Institution.Domain, u.Institution.Type,
		u.HasTemporaryPassword, u.LastLogin, u.LoginCount, u.CreatedAt, u.UpdatedAt)
	return err
}

// Update saves the user's identity fields by id.
func (r *PostgresRepository) Update(ctx context.Context, u *domain.User) error {
	u.UpdatedAt = time.Now().UTC()
	_, err := r.db.Exec(ctx, `
		UPDATE users SET
			email = $2, full_name = $3, password_hash = $4, auth_provider = $5,
			provider_id = $6, profile_pic = $7, is_active = $8, is_verified = $9,
			verification_status = $10, verification_method = $11,
			institution_name = $12, institution_domain = $13, institution_type = $14,
			has_temporary_password = $15, last_login = $16, login_count = $17, updated_at = $18
		WHERE id = $1
	`, u.ID, u.Email, u.FullName, u.PasswordHash, string(u.AuthProvider),
		u.ProviderID, u.ProfilePic, u.IsActive, u.IsVerified,
		string(u.VerificationStatus), string(u.VerificationMethod),
		u.Institution.Name, u.Institution.Domain, u.Institution.Type,
		u.HasTemporaryPassword, u.LastLogin, u.LoginCount, u.UpdatedAt)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var provider, status, method string
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &provider, &u.ProviderID, &u.ProfilePic,
		&u.IsActive, &u.IsVerified, &status, &method,
		&u.Institution.Name, &u.Institution.Domain, &u.Institution.Type,
		&u.HasTemporaryPassword, &u.LastLogin, &u.LoginCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.AuthProvider = domain.AuthProvider(provider)
	u.VerificationStatus = domain.VerificationStatus(status)
	u.VerificationMethod = domain.VerificationMethod(method)
	return &u, nil
}
