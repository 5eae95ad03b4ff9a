package auth

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Rank orders roles for RoleAtLeast checks. Unknown roles rank below user.
func (r Role) Rank() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAgent:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

func (r Role) Valid() bool { return r.Rank() > 0 }

// ParseRole normalizes s and rejects anything outside the fixed role set.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.Valid() {
		return "", ErrInvalidRole.WithMessage("invalid role %q", s)
	}
	return role, nil
}

// User is the domain representation of a marketplace identity.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	Name         string
	PhotoURL     string
	PasswordHash string
	Role         Role
	IsFraud      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) Standing() Standing {
	return Standing{Email: u.Email, Role: u.Role, IsFraud: u.IsFraud}
}

// Standing is the part of an identity the access policy consults.
type Standing struct {
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	IsFraud bool   `json:"is_fraud"`
}

// Claims is what a verified token asserts. Only the subject email is carried;
// role and standing are always resolved through the Directory.
type Claims struct {
	Email     string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
	PhotoURL string
	Role     Role
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string
	Password string
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
