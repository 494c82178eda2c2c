package user

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// SystemEmail is the reserved address of the internal user that owns the
// engine's counter-party accounts.
const SystemEmail = "system@ledger.internal"

// Service handles user business logic
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new user service
func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.WithComponent("user"),
	}
}

// Register registers a new user with the standard role
func (s *Service) Register(ctx context.Context, email, password string) (*User, error) {
	u := &User{
		ID:        uuid.New(),
		Email:     email,
		Role:      RoleUser,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := u.ValidateEmail(); err != nil {
		return nil, err
	}

	exists, err := s.repo.Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	if err := u.SetPassword(password); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("user registered", "user_id", u.ID)
	return u, nil
}

// Login authenticates a user with email and password
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrUserNotFound {
			// Don't reveal that the user doesn't exist
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if u.Role == RoleSystem {
		return nil, ErrSystemUser
	}

	if err := u.CheckPassword(password); err != nil {
		return nil, err
	}

	u.UpdateLastLogin()
	if err := s.repo.Update(ctx, u); err != nil {
		// Non-critical, the login itself succeeded
		s.log.WithError(err).Warn("failed to update last login", "user_id", u.ID)
	}

	return u, nil
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// EnsureSystemUser creates the reserved system user if absent and returns
// its id. The engine's counter-party accounts hang off this user. Its
// password is random and discarded, and Login refuses the role anyway.
func (s *Service) EnsureSystemUser(ctx context.Context) (uuid.UUID, error) {
	existing, err := s.repo.GetByEmail(ctx, SystemEmail)
	if err == nil {
		return existing.ID, nil
	}
	if err != ErrUserNotFound {
		return uuid.Nil, fmt.Errorf("failed to look up system user: %w", err)
	}

	var secret [32]byte
	if _, err := rand.Read(secret[:]); err != nil {
		return uuid.Nil, fmt.Errorf("failed to generate system credential: %w", err)
	}

	u := &User{
		ID:        uuid.New(),
		Email:     SystemEmail,
		Role:      RoleSystem,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := u.SetPassword(hex.EncodeToString(secret[:])); err != nil {
		return uuid.Nil, err
	}

	if err := s.repo.Create(ctx, u); err != nil {
		if err == ErrUserAlreadyExists {
			// Lost a race with another instance booting at the same time.
			existing, err := s.repo.GetByEmail(ctx, SystemEmail)
			if err != nil {
				return uuid.Nil, fmt.Errorf("failed to re-fetch system user: %w", err)
			}
			return existing.ID, nil
		}
		return uuid.Nil, fmt.Errorf("failed to create system user: %w", err)
	}

	s.log.Info("system user created", "user_id", u.ID)
	return u.ID, nil
}
