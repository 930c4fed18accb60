package auth

import (
	"context"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepositoryDelete(t *testing.T) {
	ctx := context.Background()
	deleteSQL := regexp.QuoteMeta(`DELETE FROM users WHERE id = $1`)

	cases := []struct {
		name   string
		expect func(pgxmock.PgxPoolIface, uuid.UUID)
		want   error
	}{
		{
			name: "deleted",
			expect: func(mock pgxmock.PgxPoolIface, id uuid.UUID) {
				mock.ExpectExec(deleteSQL).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 1))
			},
		},
		{
			name: "unknown user",
			expect: func(mock pgxmock.PgxPoolIface, id uuid.UUID) {
				mock.ExpectExec(deleteSQL).WithArgs(id).WillReturnResult(pgxmock.NewResult("DELETE", 0))
			},
			want: ErrUserNotFound,
		},
		{
			name: "registrations on record",
			expect: func(mock pgxmock.PgxPoolIface, id uuid.UUID) {
				mock.ExpectExec(deleteSQL).WithArgs(id).
					WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "registrations_user_id_fkey"})
			},
			want: ErrUserHasRegistrations,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()
			id := uuid.New()
			tc.expect(mock, id)

			err = NewRepository(mock).Delete(ctx, id)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
