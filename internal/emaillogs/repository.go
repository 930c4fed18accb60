package emaillogs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evenia/backend/internal/models"
)

// Repository handles email_logs persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an email logs repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending log entry and fills its id and creation time.
func (r *Repository) Create(ctx context.Context, el *models.EmailLog) error {
	const q = `INSERT INTO email_logs (event_id, registration_id, email_type, recipient_email, subject, status)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		RETURNING id, created_at`
	if el.Status == "" {
		el.Status = models.EmailLogStatusPending
	}
	return r.pool.QueryRow(ctx, q, el.EventID, el.RegistrationID, el.EmailType, el.RecipientEmail, el.Subject, el.Status).
		Scan(&el.ID, &el.CreatedAt)
}

// MarkSent records a successful delivery.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	const q = `UPDATE email_logs SET status = 'sent', sent_at = $2, error_message = NULL WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, at)
	return err
}

// MarkFailed records a failed delivery.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE email_logs SET status = 'failed', error_message = $2 WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id, reason)
	return err
}

// HasSent reports whether emailType was already delivered for the registration.
func (r *Repository) HasSent(ctx context.Context, registrationID uuid.UUID, emailType string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM email_logs WHERE registration_id = $1 AND email_type = $2 AND status = 'sent')`
	var ok bool
	err := r.pool.QueryRow(ctx, q, registrationID, emailType).Scan(&ok)
	return ok, err
}

// ListByEvent returns email logs for an event, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*models.EmailLog, error) {
	const q = `SELECT id, event_id, registration_id, email_type, recipient_email, subject, status, sent_at, error_message, created_at
		FROM email_logs
		WHERE event_id = $1
		ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, q, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.EmailLog{}
	for rows.Next() {
		var el models.EmailLog
		var subject, errMsg *string
		if err := rows.Scan(&el.ID, &el.EventID, &el.RegistrationID, &el.EmailType, &el.RecipientEmail, &subject, &el.Status, &el.SentAt, &errMsg, &el.CreatedAt); err != nil {
			return nil, err
		}
		if subject != nil {
			el.Subject = *subject
		}
		if errMsg != nil {
			el.ErrorMessage = *errMsg
		}
		list = append(list, &el)
	}
	return list, rows.Err()
}
