package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles identity storage for the Directory.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetStanding(ctx context.Context, email string) (Standing, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, userID string, role Role) (User, error)
	MarkFraud(ctx context.Context, userID string) (User, error)
	DeleteUser(ctx context.Context, userID string) (User, error)
	CountByRole(ctx context.Context, role Role) (int, error)
}

// CreateUserParams contains write parameters for creating users.
type CreateUserParams struct {
	Email        string
	Name         string
	PhotoURL     string
	PasswordHash string
	Role         Role
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id::text, email, name, photo_url, password_hash, role, is_fraud, created_at, updated_at`

func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	const insertSQL = `
		INSERT INTO users (email, name, photo_url, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, insertSQL, params.Email, params.Name, params.PhotoURL, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, ErrDuplicateEmail
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}
	return user, nil
}

func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	selectSQL := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by email: %w", err)
	}
	return user, nil
}

func (r *PGRepository) GetUserByID(ctx context.Context, userID string) (User, error) {
	selectSQL := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, selectSQL, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by id: %w", err)
	}
	return user, nil
}

func (r *PGRepository) GetStanding(ctx context.Context, email string) (Standing, error) {
	var s Standing
	err := r.pool.QueryRow(ctx, `SELECT email, role, is_fraud FROM users WHERE email = $1`, email).
		Scan(&s.Email, &s.Role, &s.IsFraud)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Standing{}, ErrUserNotFound
		}
		return Standing{}, fmt.Errorf("auth: get standing: %w", err)
	}
	return s, nil
}

func (r *PGRepository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	return users, nil
}

func (r *PGRepository) UpdateRole(ctx context.Context, userID string, role Role) (User, error) {
	updateSQL := `UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return r.mutate(ctx, "update role", updateSQL, userID, role)
}

func (r *PGRepository) MarkFraud(ctx context.Context, userID string) (User, error) {
	updateSQL := `UPDATE users SET is_fraud = TRUE, updated_at = NOW() WHERE id = $1 RETURNING ` + userColumns
	return r.mutate(ctx, "mark fraud", updateSQL, userID)
}

func (r *PGRepository) DeleteUser(ctx context.Context, userID string) (User, error) {
	deleteSQL := `DELETE FROM users WHERE id = $1 RETURNING ` + userColumns
	return r.mutate(ctx, "delete user", deleteSQL, userID)
}

func (r *PGRepository) CountByRole(ctx context.Context, role Role) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("auth: count by role: %w", err)
	}
	return n, nil
}

func (r *PGRepository) mutate(ctx context.Context, op, query string, args ...any) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: %s: %w", op, err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PhotoURL,
		&user.PasswordHash,
		&user.Role,
		&user.IsFraud,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}
