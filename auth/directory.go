package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"dreamkeys/apperr"
	"dreamkeys/audit"
)

const minPasswordLength = 8

// Directory is the source of truth for who a subject is and what they may do.
// Callers that gate privileged operations must resolve roles here rather than
// trusting anything carried in a token.
type Directory struct {
	repo   Repository
	tokens *TokenService
	audit  *audit.Logger
}

func NewDirectory(repo Repository, tokens *TokenService) *Directory {
	return &Directory{
		repo:   repo,
		tokens: tokens,
		audit:  audit.Default(),
	}
}

func (d *Directory) WithAudit(a *audit.Logger) *Directory {
	d.audit = a
	return d
}

// Register creates a new identity. Self-registration may pick user or agent
// but never admin.
func (d *Directory) Register(ctx context.Context, req RegisterRequest) (User, error) {
	if len(req.Password) < minPasswordLength {
		return User{}, ErrWeakPassword
	}

	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if email == "" || name == "" {
		return User{}, apperr.InvalidArgument("email and name are required")
	}

	role := RoleUser
	if strings.TrimSpace(string(req.Role)) != "" {
		parsed, err := ParseRole(string(req.Role))
		if err != nil {
			return User{}, err
		}
		role = parsed
	}
	if role == RoleAdmin {
		return User{}, ErrInvalidRole.WithMessage("admin role cannot be self-assigned")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("auth: hash password: %w", err)
	}

	return d.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		Name:         name,
		PhotoURL:     strings.TrimSpace(req.PhotoURL),
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Login checks the password and issues a token bound to the email only.
func (d *Directory) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := d.repo.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, claims, err := d.tokens.Issue(user.Email)
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Token: token, ExpiresAt: claims.ExpiresAt, User: user}, nil
}

// Resolve returns the current role and standing of email.
func (d *Directory) Resolve(ctx context.Context, email string) (Standing, error) {
	email = normalizeEmail(email)
	if email == "" {
		return Standing{}, ErrUserNotFound
	}
	return d.repo.GetStanding(ctx, email)
}

// RoleOf is the lenient lookup behind the role endpoint: unknown emails
// resolve to the default user role.
func (d *Directory) RoleOf(ctx context.Context, email string) (Role, error) {
	s, err := d.Resolve(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return RoleUser, nil
		}
		return "", err
	}
	return s.Role, nil
}

func (d *Directory) GetByID(ctx context.Context, userID string) (User, error) {
	if err := validateUserID(userID); err != nil {
		return User{}, err
	}
	return d.repo.GetUserByID(ctx, userID)
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (User, error) {
	return d.repo.GetUserByEmail(ctx, normalizeEmail(email))
}

func (d *Directory) List(ctx context.Context) ([]User, error) {
	return d.repo.ListUsers(ctx)
}

// SetRole changes userID's role. The caller must already hold admin rights;
// actor is the admin's email.
func (d *Directory) SetRole(ctx context.Context, actor, userID string, role Role) (User, error) {
	role, err := ParseRole(string(role))
	if err != nil {
		return User{}, err
	}
	target, err := d.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if target.Role == role {
		return target, nil
	}
	if strings.EqualFold(target.Email, actor) {
		return User{}, ErrSelfModification
	}
	if target.Role == RoleAdmin {
		if err := d.ensureOtherAdmin(ctx); err != nil {
			return User{}, err
		}
	}

	updated, err := d.repo.UpdateRole(ctx, userID, role)
	if err != nil {
		return User{}, err
	}
	d.audit.RoleChanged(ctx, actor, userID, string(target.Role), string(role))
	return updated, nil
}

// MarkFraud flags userID. The flag is one-way; flagging twice is a no-op.
func (d *Directory) MarkFraud(ctx context.Context, actor, userID string) (User, error) {
	target, err := d.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if target.IsFraud {
		return target, nil
	}
	if strings.EqualFold(target.Email, actor) {
		return User{}, ErrSelfModification
	}

	updated, err := d.repo.MarkFraud(ctx, userID)
	if err != nil {
		return User{}, err
	}
	d.audit.UserFlagged(ctx, actor, userID)
	return updated, nil
}

// Delete removes userID and returns the removed identity so callers can
// cascade to resources the user owned.
func (d *Directory) Delete(ctx context.Context, actor, userID string) (User, error) {
	target, err := d.GetByID(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if strings.EqualFold(target.Email, actor) {
		return User{}, ErrSelfModification
	}
	if target.Role == RoleAdmin {
		if err := d.ensureOtherAdmin(ctx); err != nil {
			return User{}, err
		}
	}

	deleted, err := d.repo.DeleteUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	d.audit.UserDeleted(ctx, actor, userID)
	return deleted, nil
}

func (d *Directory) ensureOtherAdmin(ctx context.Context) error {
	n, err := d.repo.CountByRole(ctx, RoleAdmin)
	if err != nil {
		return err
	}
	if n <= 1 {
		return ErrLastAdmin
	}
	return nil
}

func validateUserID(id string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return ErrInvalidUserID
	}
	return nil
}
