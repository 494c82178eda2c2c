package user

import "errors"

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidPassword     = errors.New("invalid email or password")
	ErrPasswordTooShort    = errors.New("password must be at least 8 characters")
	ErrInvalidPasswordHash = errors.New("password hash is required")
	ErrInvalidRole         = errors.New("invalid role")
	ErrSystemUser          = errors.New("the system user cannot log in")
)
