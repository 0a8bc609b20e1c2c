package model

import (
	"errors"
	"strings"
	"time"
)

// Role is the authorization role carried by a user and by every token
// issued for that user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ErrInvalidRole is returned by ParseRole for anything but user/admin.
var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes s and validates it against the known roles.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAdmin:
		return r, nil
	}
	return "", ErrInvalidRole
}

// User mirrors a row of the `users` table.
//
// The json tags define the cached representation as well, so PasswordHash
// is serialized; handlers must never encode a User directly into a response.
//
// Fields:
//
//	ID           – primary key, immutable.
//	Username     – unique login name, immutable after creation.
//	PasswordHash – bcrypt hash of the password.
//	Role         – user or admin.
type User struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewUser is the input to UserRepo.Create. Password must already be hashed.
type NewUser struct {
	Username     string
	PasswordHash string
	Role         Role
}

// RefreshToken models the single row of `refresh_tokens` owned by a user.
// A later login replaces Token and ExpiresAt in place.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
