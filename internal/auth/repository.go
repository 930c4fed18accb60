package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/database"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailTaken   = errors.New("email already registered")

	// ErrUserHasRegistrations blocks deleting a user whose registrations are on record.
	ErrUserHasRegistrations = errors.New("user has registrations")
)

const pgForeignKeyViolation = "23503"

const userColumns = `id, email, password_hash, full_name, COALESCE(phone, ''), role, created_at, updated_at`

// Repository handles user persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates an auth repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns a user by email (case-insensitive).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// List returns one page of users matching search on email or name, and the total count.
func (r *Repository) List(ctx context.Context, search string, page, perPage int) ([]models.UserPublic, int, error) {
	where := ""
	var args []interface{}
	if s := strings.TrimSpace(search); s != "" {
		where = ` WHERE email ILIKE $1 OR full_name ILIKE $1`
		args = append(args, "%"+s+"%")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf(`SELECT id, email, full_name, COALESCE(phone, ''), role, created_at FROM users%s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list := []models.UserPublic{}
	for rows.Next() {
		var u models.UserPublic
		if err := rows.Scan(&u.ID, &u.Email, &u.FullName, &u.Phone, &u.Role, &u.CreatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, u)
	}
	return list, total, rows.Err()
}

// Create inserts a new user.
func (r *Repository) Create(ctx context.Context, email, passwordHash, fullName, phone string, role models.Role) (*models.User, error) {
	const q = `INSERT INTO users (email, password_hash, full_name, phone, role)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5)
		RETURNING ` + userColumns
	u, err := scanUser(r.pool.QueryRow(ctx, q, strings.ToLower(email), passwordHash, fullName, phone, string(role)))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

// Delete removes a user. Registrations reference users with ON DELETE RESTRICT,
// so a user with any registration on record cannot be deleted.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrUserHasRegistrations
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
