package user

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the persistence port for users
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	Exists(ctx context.Context, email string) (bool, error)
}
