package repository

import (
	"context"

	"studyhub/backend/internal/user/domain"
)

// Repository defines persistence for user records. The document store is
// owned by the wider platform; this subsystem only loads and saves the
// identity subset.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, u *domain.User) error
}
