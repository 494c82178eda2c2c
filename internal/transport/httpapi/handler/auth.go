package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Dayo-Adewuyi/Banking-Ledger-System/internal/platform/user"
	"github.com/Dayo-Adewuyi/Banking-Ledger-System/pkg/logger"
)

// UserService is the part of the user service the auth handler needs.
type UserService interface {
	Register(ctx context.Context, email, password string) (*user.User, error)
	Login(ctx context.Context, email, password string) (*user.User, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	GenerateToken(userID uuid.UUID, email, role string) (string, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	users  UserService
	tokens TokenIssuer
	log    *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(users UserService, tokens TokenIssuer, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		log:    log.WithComponent("auth_handler"),
	}
}

// RegisterRequest is the payload for user registration
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the payload for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned on successful registration or login
type AuthResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// UserInfo is the public view of a user
type UserInfo struct {
	ID          uuid.UUID  `json:"id"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func userInfo(u *user.User) UserInfo {
	return UserInfo{
		ID:          u.ID,
		Email:       u.Email,
		Role:        string(u.Role),
		CreatedAt:   u.CreatedAt,
		LastLoginAt: u.LastLoginAt,
	}
}

// Register handles POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUserAlreadyExists):
			respondError(w, http.StatusConflict, "a user with this email already exists")
		case errors.Is(err, user.ErrInvalidEmail):
			respondError(w, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, user.ErrPasswordTooShort):
			respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		default:
			h.log.WithError(err).Error("registration failed")
			respondError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	token, err := h.tokens.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		h.log.WithError(err).Error("token generation failed", "user_id", u.ID)
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	respondJSON(w, http.StatusCreated, AuthResponse{Token: token, User: userInfo(u)})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidPassword), errors.Is(err, user.ErrSystemUser):
			respondError(w, http.StatusUnauthorized, "invalid email or password")
		default:
			h.log.WithError(err).Error("login failed")
			respondError(w, http.StatusInternalServerError, "failed to log in")
		}
		return
	}

	token, err := h.tokens.GenerateToken(u.ID, u.Email, string(u.Role))
	if err != nil {
		h.log.WithError(err).Error("token generation failed", "user_id", u.ID)
		respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, AuthResponse{Token: token, User: userInfo(u)})
}
