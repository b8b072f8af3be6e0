package sqlstore

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

func newMockRepo(t *testing.T) (repository.AvailabilityRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return NewAvailabilityRepository(sqlx.NewDb(mockDB, "sqlmock")), mock
}

func TestStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}

	t.Run("find calendar", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery("SELECT (.+) FROM calendars").WillReturnError(refused)

		_, err := repo.FindCalendar(ctx, keyD1)
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set slot booked", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("UPDATE time_slots").WillReturnError(refused)

		err := repo.SetSlotBooked(ctx, keyD1, model.Date{Year: 2025, Month: 1, Day: 10}, "09:00", true)
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectBegin().WillReturnError(refused)

		err := repo.WithTx(ctx, func(repository.AvailabilityRepository) error { return nil })
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	})

	t.Run("postgres connection class", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectExec("DELETE FROM calendar_dates").
			WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

		_, err := repo.DeleteDatesBefore(ctx, model.Date{Year: 2025, Month: 1, Day: 1})
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	})
}

func TestOtherErrorsPassThrough(t *testing.T) {
	repo, mock := newMockRepo(t)
	syntax := &pq.Error{Code: "42601", Message: "syntax error"}
	mock.ExpectQuery("SELECT (.+) FROM calendars").WillReturnError(syntax)

	_, err := repo.ListCalendars(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrStorageUnavailable)

	var pqErr *pq.Error
	assert.True(t, errors.As(err, &pqErr))
}

func TestFindCalendar_NoRows(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM calendars").
		WithArgs("D1", "C1", "general").
		WillReturnRows(sqlmock.NewRows([]string{"id", "doctor_id", "clinic_id", "treatment_type", "name", "last_synced_at", "created_at"}))

	_, err := repo.FindCalendar(context.Background(), keyD1)
	assert.ErrorIs(t, err, repository.ErrCalendarNotFound)
}
