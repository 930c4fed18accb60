package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/database"
)

const (
	pgUniqueViolation  = "23505"
	activeUserEventIdx = "idx_registrations_active_user_event"
)

const selectRegistration = `SELECT r.id, r.user_id, r.event_id, r.status, COALESCE(r.qr_code, ''), r.price,
	r.attended_at, r.created_at, r.updated_at,
	u.email, u.full_name,
	e.title, e.slug, e.description, e.description_html, e.location, e.starts_at, e.ends_at,
	e.capacity, e.price, e.published, e.created_at, e.updated_at
	FROM registrations r
	JOIN users u ON u.id = r.user_id
	JOIN events e ON e.id = r.event_id`

// Repository is the PostgreSQL Store.
type Repository struct {
	pool database.DB
}

// NewRepository creates a registrations repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var (
		reg models.Registration
		u   models.UserSummary
		e   models.Event
	)
	err := row.Scan(&reg.ID, &reg.UserID, &reg.EventID, &reg.Status, &reg.QRCode, &reg.Price,
		&reg.AttendedAt, &reg.CreatedAt, &reg.UpdatedAt,
		&u.Email, &u.FullName,
		&e.Title, &e.Slug, &e.Description, &e.DescriptionHTML, &e.Location, &e.StartsAt, &e.EndsAt,
		&e.Capacity, &e.Price, &e.Published, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID = reg.UserID
	e.ID = reg.EventID
	reg.User = &u
	reg.Event = &e
	return &reg, nil
}

func (r *Repository) queryOne(ctx context.Context, q db, where string, arg any, suffix string) (*models.Registration, error) {
	reg, err := scanRegistration(q.QueryRow(ctx, selectRegistration+" WHERE "+where+suffix, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, persistence("load registration", err)
	}
	return reg, nil
}

func (r *Repository) queryMany(ctx context.Context, q string, args ...any) ([]models.Registration, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, persistence("list registrations", err)
	}
	defer rows.Close()
	var list []models.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, persistence("scan registration", err)
		}
		list = append(list, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, persistence("list registrations", err)
	}
	return list, nil
}

// db is satisfied by both the pool and a transaction.
type db interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Create inserts reg while holding the event row lock so concurrent
// registrations cannot overshoot capacity.
func (r *Repository) Create(ctx context.Context, reg *models.Registration, capacity int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return persistence("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrEventNotFound
		}
		return persistence("lock event", err)
	}
	if capacity > 0 {
		var taken int
		const countQ = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'canceled'`
		if err := tx.QueryRow(ctx, countQ, reg.EventID).Scan(&taken); err != nil {
			return persistence("count registrations", err)
		}
		if taken >= capacity {
			return ErrEventFull
		}
	}

	const q = `INSERT INTO registrations (id, user_id, event_id, status, price)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`
	err = tx.QueryRow(ctx, q, reg.ID, reg.UserID, reg.EventID, string(reg.Status), reg.Price).
		Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == activeUserEventIdx {
			return ErrAlreadyRegistered
		}
		return persistence("insert registration", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return persistence("commit", err)
	}
	return nil
}

// GetByID returns a registration by id.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	return r.queryOne(ctx, r.pool, "r.id = $1", id, "")
}

// GetByCode returns the registration holding code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Registration, error) {
	return r.queryOne(ctx, r.pool, "r.qr_code = $1", code, "")
}

// ListByUser returns a user's registrations, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return r.queryMany(ctx, selectRegistration+` WHERE r.user_id = $1 ORDER BY r.created_at DESC`, userID)
}

// ListByEvent returns an event's registrations. An empty status matches all.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID, status models.RegistrationStatus) ([]models.Registration, error) {
	return r.queryMany(ctx, selectRegistration+` WHERE r.event_id = $1 AND ($2::text = '' OR r.status = $2::text)
		ORDER BY r.created_at`, eventID, string(status))
}

// Stats counts an event's registrations by status. Revenue sums confirmed and attended prices.
func (r *Repository) Stats(ctx context.Context, eventID uuid.UUID) (*models.RegistrationStats, error) {
	const q = `SELECT COUNT(*),
		COUNT(*) FILTER (WHERE status = 'pending'),
		COUNT(*) FILTER (WHERE status = 'confirmed'),
		COUNT(*) FILTER (WHERE status = 'attended'),
		COUNT(*) FILTER (WHERE status = 'canceled'),
		COALESCE(SUM(price) FILTER (WHERE status IN ('confirmed', 'attended')), 0)
		FROM registrations WHERE event_id = $1`
	var s models.RegistrationStats
	err := r.pool.QueryRow(ctx, q, eventID).Scan(&s.Total, &s.Pending, &s.Confirmed, &s.Attended, &s.Canceled, &s.Revenue)
	if err != nil {
		return nil, persistence("registration stats", err)
	}
	return &s, nil
}

// AssignCode sets qr_code once. When another writer got there first, the stored code wins.
func (r *Repository) AssignCode(ctx context.Context, id uuid.UUID, code string) (string, error) {
	const q = `UPDATE registrations SET qr_code = $2, updated_at = NOW()
		WHERE id = $1 AND qr_code IS NULL RETURNING qr_code`
	var stored string
	err := r.pool.QueryRow(ctx, q, id, code).Scan(&stored)
	if err == nil {
		return stored, nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return "", ErrCodeTaken
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", persistence("assign code", err)
	}
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(qr_code, '') FROM registrations WHERE id = $1`, id).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", persistence("read code", err)
	}
	return stored, nil
}

// MutateByID locks the registration by id and applies fn.
func (r *Repository) MutateByID(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.Registration, error) {
	return r.mutate(ctx, "r.id = $1", id, fn)
}

// MutateByCode locks the registration holding code and applies fn.
func (r *Repository) MutateByCode(ctx context.Context, code string, fn MutateFunc) (*models.Registration, error) {
	return r.mutate(ctx, "r.qr_code = $1", code, fn)
}

func (r *Repository) mutate(ctx context.Context, where string, arg any, fn MutateFunc) (*models.Registration, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, persistence("begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	reg, err := r.queryOne(ctx, tx, where, arg, " FOR UPDATE OF r")
	if err != nil {
		return nil, err
	}
	if err := fn(reg); err != nil {
		return nil, err
	}

	const q = `UPDATE registrations SET status = $2, attended_at = $3, updated_at = NOW()
		WHERE id = $1 RETURNING updated_at`
	if err := tx.QueryRow(ctx, q, reg.ID, string(reg.Status), reg.AttendedAt).Scan(&reg.UpdatedAt); err != nil {
		return nil, persistence("update registration", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, persistence("commit", err)
	}
	return reg, nil
}

// DueReminders lists active registrations of published events starting in
// [from, to) without a pending or sent reminder.
func (r *Repository) DueReminders(ctx context.Context, from, to time.Time) ([]models.Registration, error) {
	return r.queryMany(ctx, selectRegistration+` WHERE r.status IN ('pending', 'confirmed')
		AND e.published AND e.starts_at >= $1 AND e.starts_at < $2
		AND NOT EXISTS (
			SELECT 1 FROM email_logs l
			WHERE l.registration_id = r.id AND l.email_type = $3 AND l.status <> 'failed'
		)
		ORDER BY e.starts_at`, from, to, models.EmailTypeReminder24h)
}
