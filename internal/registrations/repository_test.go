package registrations

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evenia/backend/internal/models"
)

var registrationCols = []string{
	"id", "user_id", "event_id", "status", "qr_code", "price",
	"attended_at", "created_at", "updated_at",
	"email", "full_name",
	"title", "slug", "description", "description_html", "location", "starts_at", "ends_at",
	"capacity", "price", "published", "created_at", "updated_at",
}

func newSQLRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRepository(mock), mock
}

func TestRepositoryAssignCode(t *testing.T) {
	ctx := context.Background()
	const assignSQL = `UPDATE registrations SET qr_code = $2`
	const readSQL = `SELECT COALESCE(qr_code, '') FROM registrations WHERE id = $1`

	t.Run("stores the code", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs(id, "ABCD2345").
			WillReturnRows(mock.NewRows([]string{"qr_code"}).AddRow("ABCD2345"))

		code, err := repo.AssignCode(ctx, id, "ABCD2345")
		require.NoError(t, err)
		assert.Equal(t, "ABCD2345", code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation means the code is taken", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs(id, "ABCD2345").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "registrations_qr_code_key"})

		_, err := repo.AssignCode(ctx, id, "ABCD2345")
		assert.ErrorIs(t, err, ErrCodeTaken)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already assigned returns the stored code", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs(id, "NEWCODE9").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(readSQL)).WithArgs(id).
			WillReturnRows(mock.NewRows([]string{"qr_code"}).AddRow("OLDCODE2"))

		code, err := repo.AssignCode(ctx, id, "NEWCODE9")
		require.NoError(t, err)
		assert.Equal(t, "OLDCODE2", code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing registration", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta(assignSQL)).WithArgs(id, "NEWCODE9").WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(regexp.QuoteMeta(readSQL)).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		_, err := repo.AssignCode(ctx, id, "NEWCODE9")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryCreate(t *testing.T) {
	ctx := context.Background()
	const lockSQL = `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`
	const countSQL = `SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'canceled'`
	const insertSQL = `INSERT INTO registrations`

	newReg := func() *models.Registration {
		return &models.Registration{
			ID: uuid.New(), UserID: uuid.New(), EventID: uuid.New(),
			Status: models.StatusPending, Price: decimal.NewFromInt(15),
		}
	}
	expectLockAndCount := func(mock pgxmock.PgxPoolIface, reg *models.Registration, taken int) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).WithArgs(reg.EventID).
			WillReturnRows(mock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta(countSQL)).WithArgs(reg.EventID).
			WillReturnRows(mock.NewRows([]string{"count"}).AddRow(taken))
	}

	t.Run("inserts under the event lock", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		created := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
		expectLockAndCount(mock, reg, 3)
		mock.ExpectQuery(regexp.QuoteMeta(insertSQL)).
			WithArgs(reg.ID, reg.UserID, reg.EventID, "pending", reg.Price).
			WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(created, created))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, reg, 10))
		assert.Equal(t, created, reg.CreatedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("full event", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		expectLockAndCount(mock, reg, 10)
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Create(ctx, reg, 10), ErrEventFull)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("active registration index violation", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		expectLockAndCount(mock, reg, 1)
		mock.ExpectQuery(regexp.QuoteMeta(insertSQL)).WithArgs(reg.ID, reg.UserID, reg.EventID, "pending", reg.Price).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: activeUserEventIdx})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Create(ctx, reg, 10), ErrAlreadyRegistered)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other unique violation is a persistence failure", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		expectLockAndCount(mock, reg, 1)
		mock.ExpectQuery(regexp.QuoteMeta(insertSQL)).WithArgs(reg.ID, reg.UserID, reg.EventID, "pending", reg.Price).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "registrations_pkey"})
		mock.ExpectRollback()

		err := repo.Create(ctx, reg, 10)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrAlreadyRegistered)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unlimited capacity skips the count", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).WithArgs(reg.EventID).
			WillReturnRows(mock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectQuery(regexp.QuoteMeta(insertSQL)).WithArgs(reg.ID, reg.UserID, reg.EventID, "pending", reg.Price).
			WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, reg, 0))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown event", func(t *testing.T) {
		repo, mock := newSQLRepo(t)
		reg := newReg()
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta(lockSQL)).WithArgs(reg.EventID).WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Create(ctx, reg, 10), ErrEventNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepositoryMutateLocksRow(t *testing.T) {
	ctx := context.Background()
	repo, mock := newSQLRepo(t)
	id, userID, eventID := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	startsAt := created.Add(72 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r\.id = \$1 FOR UPDATE OF r$`).WithArgs(id).
		WillReturnRows(mock.NewRows(registrationCols).AddRow(
			id, userID, eventID, models.StatusPending, "", decimal.Zero,
			nil, created, created,
			"ana@example.com", "Ana",
			"Atelier", "atelier", "", "", "Lyon", startsAt, nil,
			20, decimal.Zero, true, created, created,
		))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE registrations SET status = $2, attended_at = $3`)).
		WithArgs(id, "confirmed", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"updated_at"}).AddRow(updated))
	mock.ExpectCommit()

	reg, err := repo.MutateByID(ctx, id, func(reg *models.Registration) error {
		reg.Status = models.StatusConfirmed
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, reg.Status)
	assert.Equal(t, updated, reg.UpdatedAt)
	assert.Equal(t, "ana@example.com", reg.User.Email)
	assert.Equal(t, "Atelier", reg.Event.Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryMutateRejected(t *testing.T) {
	ctx := context.Background()
	repo, mock := newSQLRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE r\.qr_code = \$1 FOR UPDATE OF r$`).WithArgs("ZZZZ9999").WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.MutateByCode(ctx, "ZZZZ9999", func(*models.Registration) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
