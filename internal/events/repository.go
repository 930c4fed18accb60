package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/evenia/backend/internal/models"
	"github.com/evenia/backend/pkg/database"
)

var (
	ErrNotFound = errors.New("event not found")
	// ErrHasRegistrations blocks deleting an event that has any registration on record.
	ErrHasRegistrations = errors.New("event has registrations")
)

const eventColumns = `id, title, slug, description, description_html, location, starts_at, ends_at,
	capacity, price, published, created_at, updated_at`

// Timing filters for List.
const (
	WhenUpcoming = "upcoming"
	WhenPast     = "past"
)

// ListFilter narrows List. Zero values mean no filtering.
type ListFilter struct {
	When          string
	Query         string
	PublishedOnly bool
	Page          int
	PerPage       int
}

func (f *ListFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
}

// Patch holds the fields an update may change. Nil fields are left alone.
type Patch struct {
	Title       *string
	Description *string
	Location    *string
	StartsAt    *time.Time
	EndsAt      *time.Time
	Capacity    *int
	Price       *decimal.Decimal
	Published   *bool
}

// Repository handles event persistence.
type Repository struct {
	pool database.DB
}

// NewRepository creates an event repository.
func NewRepository(pool database.DB) *Repository {
	return &Repository{pool: pool}
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(&e.ID, &e.Title, &e.Slug, &e.Description, &e.DescriptionHTML, &e.Location, &e.StartsAt, &e.EndsAt,
		&e.Capacity, &e.Price, &e.Published, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event. A taken slug gets a short id suffix.
func (r *Repository) Create(ctx context.Context, e *models.Event) error {
	e.ID = uuid.New()
	if e.Slug == "" {
		e.Slug = Slugify(e.Title)
	}
	const q = `INSERT INTO events (id, title, slug, description, description_html, location, starts_at, ends_at, capacity, price, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`
	insert := func() error {
		return r.pool.QueryRow(ctx, q, e.ID, e.Title, e.Slug, e.Description, e.DescriptionHTML, e.Location,
			e.StartsAt, e.EndsAt, e.Capacity, e.Price, e.Published).Scan(&e.CreatedAt, &e.UpdatedAt)
	}
	err := insert()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "events_slug_key" {
		e.Slug = e.Slug + "-" + e.ID.String()[:8]
		err = insert()
	}
	return err
}

// GetByID returns an event by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// GetBySlug returns an event by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Event, error) {
	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns one page of events and the total number of matches.
// Upcoming events come soonest first, everything else latest first.
func (r *Repository) List(ctx context.Context, f ListFilter, now time.Time) ([]models.Event, int, error) {
	f.normalize()
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	order := "starts_at DESC"
	switch f.When {
	case WhenUpcoming:
		conds = append(conds, "starts_at > "+arg(now))
		order = "starts_at ASC"
	case WhenPast:
		conds = append(conds, "COALESCE(ends_at, starts_at + INTERVAL '2 hours') <= "+arg(now))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		p := arg("%" + q + "%")
		conds = append(conds, "(title ILIKE "+p+" OR location ILIKE "+p+")")
	}
	if f.PublishedOnly {
		conds = append(conds, "published")
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + eventColumns + ` FROM events` + where + ` ORDER BY ` + order +
		` LIMIT ` + arg(f.PerPage) + ` OFFSET ` + arg((f.Page-1)*f.PerPage)
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	list := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *e)
	}
	return list, total, rows.Err()
}

// Update applies p and returns the updated event.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, p Patch, descriptionHTML *string) (*models.Event, error) {
	const q = `UPDATE events SET
		title = COALESCE($2, title),
		description = COALESCE($3, description),
		description_html = COALESCE($4, description_html),
		location = COALESCE($5, location),
		starts_at = COALESCE($6, starts_at),
		ends_at = COALESCE($7, ends_at),
		capacity = COALESCE($8, capacity),
		price = COALESCE($9, price),
		published = COALESCE($10, published),
		updated_at = NOW()
		WHERE id = $1 RETURNING ` + eventColumns
	e, err := scanEvent(r.pool.QueryRow(ctx, q, id, p.Title, p.Description, descriptionHTML, p.Location,
		p.StartsAt, p.EndsAt, p.Capacity, p.Price, p.Published))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Delete removes an event that nobody ever registered for. Registrations are
// kept for good, so any row, canceled or attended included, blocks the delete.
// The event row is locked first so a concurrent registration cannot slip in
// between the check and the delete.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var one int
	if err := tx.QueryRow(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, id).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	var exists bool
	const existsQ = `SELECT EXISTS (SELECT 1 FROM registrations WHERE event_id = $1)`
	if err := tx.QueryRow(ctx, existsQ, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrHasRegistrations
	}
	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
