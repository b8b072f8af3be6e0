package sqlstore

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/availability-api/internal/config"
	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	db, err := NewDB(ctx, config.DatabaseConfig{
		Driver: DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "availability.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, Migrate(ctx, db, zerolog.Nop()))
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRepo(t *testing.T) (*availabilityRepository, *testClock, *sqlx.DB) {
	db := newTestDB(t)
	clock := &testClock{now: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)}
	repo := NewAvailabilityRepository(db, WithClock(clock.Now)).(*availabilityRepository)
	return repo, clock, db
}

var keyD1 = model.CalendarKey{DoctorID: "D1", ClinicID: "C1", TreatmentType: "general"}

func mustDate(t *testing.T, s string) model.Date {
	t.Helper()
	d, err := model.ParseDate(s)
	require.NoError(t, err)
	return d
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM "+table))
	return n
}

func TestMigrate_Idempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(context.Background(), db, zerolog.Nop()))
	assert.Equal(t, 2, countRows(t, db, "schema_migrations"))
}

func TestUpsertCalendar(t *testing.T) {
	repo, clock, _ := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.UpsertCalendar(ctx, keyD1, "", false)
	require.NoError(t, err)

	cal, err := repo.FindCalendar(ctx, keyD1)
	require.NoError(t, err)
	assert.Equal(t, id, cal.ID)
	assert.Equal(t, keyD1.DefaultName(), cal.Name)
	assert.Nil(t, cal.LastSyncedAt)

	t.Run("plain upsert returns existing id without touching", func(t *testing.T) {
		again, err := repo.UpsertCalendar(ctx, keyD1, "Renamed", false)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		cal, err := repo.GetCalendar(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, keyD1.DefaultName(), cal.Name)
		assert.Nil(t, cal.LastSyncedAt)
	})

	t.Run("touch stamps last sync and name", func(t *testing.T) {
		clock.Advance(time.Minute)
		again, err := repo.UpsertCalendar(ctx, keyD1, "Dr. One", true)
		require.NoError(t, err)
		assert.Equal(t, id, again)

		cal, err := repo.GetCalendar(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Dr. One", cal.Name)
		require.NotNil(t, cal.LastSyncedAt)
		assert.True(t, cal.LastSyncedAt.Equal(clock.Now()))
	})

	t.Run("touch without name keeps name", func(t *testing.T) {
		_, err := repo.UpsertCalendar(ctx, keyD1, "", true)
		require.NoError(t, err)
		cal, err := repo.GetCalendar(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Dr. One", cal.Name)
	})

	_, err = repo.FindCalendar(ctx, model.CalendarKey{DoctorID: "nobody"})
	assert.ErrorIs(t, err, repository.ErrCalendarNotFound)
	_, err = repo.GetCalendar(ctx, 9999)
	assert.ErrorIs(t, err, repository.ErrCalendarNotFound)
}

func TestListCalendars_LeastRecentlySyncedFirst(t *testing.T) {
	repo, clock, _ := newTestRepo(t)
	ctx := context.Background()

	keyA := model.CalendarKey{DoctorID: "A", ClinicID: "C1", TreatmentType: "general"}
	keyB := model.CalendarKey{DoctorID: "B", ClinicID: "C1", TreatmentType: "general"}
	keyC := model.CalendarKey{DoctorID: "C", ClinicID: "C1", TreatmentType: "general"}

	_, err := repo.UpsertCalendar(ctx, keyA, "", true)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = repo.UpsertCalendar(ctx, keyB, "", true)
	require.NoError(t, err)
	_, err = repo.UpsertCalendar(ctx, keyC, "", false)
	require.NoError(t, err)
	clock.Advance(time.Hour)
	_, err = repo.UpsertCalendar(ctx, keyA, "", true)
	require.NoError(t, err)

	calendars, err := repo.ListCalendars(ctx)
	require.NoError(t, err)
	require.Len(t, calendars, 3)
	assert.Equal(t, "C", calendars[0].DoctorID)
	assert.Equal(t, "B", calendars[1].DoctorID)
	assert.Equal(t, "A", calendars[2].DoctorID)

	keys, err := repo.ListCalendarKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []model.CalendarKey{keyA, keyB, keyC}, keys)
}

func TestUpsertDateAndSlot_Idempotent(t *testing.T) {
	repo, clock, db := newTestRepo(t)
	ctx := context.Background()

	calID, err := repo.UpsertCalendar(ctx, keyD1, "", false)
	require.NoError(t, err)

	day := mustDate(t, "2025-01-10")
	dateID, err := repo.UpsertDate(ctx, calID, day)
	require.NoError(t, err)
	again, err := repo.UpsertDate(ctx, calID, day)
	require.NoError(t, err)
	assert.Equal(t, dateID, again)

	slotID, err := repo.UpsertTimeSlot(ctx, dateID, "09:00", false)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	sameID, err := repo.UpsertTimeSlot(ctx, dateID, "09:00", false)
	require.NoError(t, err)
	assert.Equal(t, slotID, sameID)

	slots, err := repo.ListSlots(ctx, dateID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.False(t, slots[0].IsBooked)
	assert.True(t, slots[0].UpdatedAt.Equal(clock.Now()), "every upsert refreshes updated_at")

	clock.Advance(time.Minute)
	_, err = repo.UpsertTimeSlot(ctx, dateID, "09:00", true)
	require.NoError(t, err)

	slots, err = repo.ListSlots(ctx, dateID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].IsBooked)
	assert.True(t, slots[0].UpdatedAt.Equal(clock.Now()))

	assert.Equal(t, 1, countRows(t, db, "calendar_dates"))
	assert.Equal(t, 1, countRows(t, db, "time_slots"))
}

func TestListDatesAndSlots_Ordered(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	calID, err := repo.UpsertCalendar(ctx, keyD1, "", false)
	require.NoError(t, err)

	var dateIDs []int64
	for _, s := range []string{"2025-01-12", "2025-01-10", "2025-01-11", "2025-02-01"} {
		id, err := repo.UpsertDate(ctx, calID, mustDate(t, s))
		require.NoError(t, err)
		dateIDs = append(dateIDs, id)
		for _, tod := range []model.TimeOfDay{"10:00", "09:00", "09:30"} {
			_, err := repo.UpsertTimeSlot(ctx, id, tod, false)
			require.NoError(t, err)
		}
	}

	dates, err := repo.ListDatesInRange(ctx, calID, mustDate(t, "2025-01-10"), mustDate(t, "2025-01-31"))
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "2025-01-10", dates[0].CalendarDate.String())
	assert.Equal(t, "2025-01-11", dates[1].CalendarDate.String())
	assert.Equal(t, "2025-01-12", dates[2].CalendarDate.String())

	slots, err := repo.ListSlots(ctx, dates[0].ID)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, model.TimeOfDay("09:00"), slots[0].TimeOfDay)
	assert.Equal(t, model.TimeOfDay("09:30"), slots[1].TimeOfDay)
	assert.Equal(t, model.TimeOfDay("10:00"), slots[2].TimeOfDay)

	batched, err := repo.ListSlotsByDates(ctx, dateIDs[:2])
	require.NoError(t, err)
	assert.Len(t, batched, 6)

	none, err := repo.ListSlotsByDates(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)

	last, ok, err := repo.MaxDate(ctx, calID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2025-02-01", last.String())
}

func TestMaxDate_NoDates(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()

	calID, err := repo.UpsertCalendar(ctx, keyD1, "", false)
	require.NoError(t, err)

	_, ok, err := repo.MaxDate(ctx, calID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func seedSlot(t *testing.T, repo repository.AvailabilityRepository, key model.CalendarKey, day string, tod model.TimeOfDay) {
	t.Helper()
	ctx := context.Background()
	calID, err := repo.UpsertCalendar(ctx, key, "", false)
	require.NoError(t, err)
	dateID, err := repo.UpsertDate(ctx, calID, mustDate(t, day))
	require.NoError(t, err)
	_, err = repo.UpsertTimeSlot(ctx, dateID, tod, false)
	require.NoError(t, err)
}

func TestSetSlotBooked(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	ctx := context.Background()
	seedSlot(t, repo, keyD1, "2025-01-10", "09:00")
	day := mustDate(t, "2025-01-10")

	tests := []struct {
		name   string
		key    model.CalendarKey
		date   model.Date
		at     model.TimeOfDay
		booked bool
		want   error
	}{
		{"unknown calendar", model.CalendarKey{DoctorID: "D9", ClinicID: "C1", TreatmentType: "general"}, day, "09:00", true, repository.ErrCalendarNotFound},
		{"unknown date", keyD1, day.AddDays(1), "09:00", true, repository.ErrDateNotFound},
		{"unknown slot", keyD1, day, "09:15", true, repository.ErrSlotNotFound},
		{"cancel free slot", keyD1, day, "09:00", false, repository.ErrAlreadyInState},
		{"book", keyD1, day, "09:00", true, nil},
		{"book twice", keyD1, day, "09:00", true, repository.ErrAlreadyInState},
		{"cancel", keyD1, day, "09:00", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.SetSlotBooked(ctx, tt.key, tt.date, tt.at, tt.booked)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestSetSlotBooked_ConcurrentCallersExactlyOneWins(t *testing.T) {
	repo, _, _ := newTestRepo(t)
	seedSlot(t, repo, keyD1, "2025-01-10", "09:00")
	day := mustDate(t, "2025-01-10")

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- repo.SetSlotBooked(context.Background(), keyD1, day, "09:00", true)
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, repository.ErrAlreadyInState):
			conflicts++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, callers-1, conflicts)
}

func TestDeleteDatesBefore_Cascades(t *testing.T) {
	repo, _, db := newTestRepo(t)
	ctx := context.Background()

	other := model.CalendarKey{DoctorID: "D2", ClinicID: "C1", TreatmentType: "general"}
	for _, key := range []model.CalendarKey{keyD1, other} {
		seedSlot(t, repo, key, "2024-12-01", "09:00")
		seedSlot(t, repo, key, "2024-12-01", "09:30")
		seedSlot(t, repo, key, "2025-01-05", "09:00")
	}
	require.Equal(t, 6, countRows(t, db, "time_slots"))

	n, err := repo.DeleteDatesBefore(ctx, mustDate(t, "2024-12-20"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 2, countRows(t, db, "calendar_dates"))
	assert.Equal(t, 2, countRows(t, db, "time_slots"))

	var orphans int
	require.NoError(t, db.Get(&orphans, `
		SELECT COUNT(*) FROM time_slots s
		LEFT JOIN calendar_dates d ON d.id = s.date_id
		WHERE d.id IS NULL`))
	assert.Zero(t, orphans)
}

func TestDeleteCalendar_Cascades(t *testing.T) {
	repo, _, db := newTestRepo(t)
	ctx := context.Background()
	seedSlot(t, repo, keyD1, "2025-01-10", "09:00")

	cal, err := repo.FindCalendar(ctx, keyD1)
	require.NoError(t, err)

	statuses, err := repo.ListCalendarStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, 1, statuses[0].DateCount)

	require.NoError(t, repo.DeleteCalendar(ctx, cal.ID))
	assert.Zero(t, countRows(t, db, "calendars"))
	assert.Zero(t, countRows(t, db, "calendar_dates"))
	assert.Zero(t, countRows(t, db, "time_slots"))

	assert.ErrorIs(t, repo.DeleteCalendar(ctx, cal.ID), repository.ErrCalendarNotFound)
}

func TestWithTx_RollsBack(t *testing.T) {
	repo, _, db := newTestRepo(t)
	ctx := context.Background()

	boom := assert.AnError
	err := repo.WithTx(ctx, func(tx repository.AvailabilityRepository) error {
		if _, err := tx.UpsertCalendar(ctx, keyD1, "", true); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countRows(t, db, "calendars"))

	err = repo.WithTx(ctx, func(tx repository.AvailabilityRepository) error {
		_, err := tx.UpsertCalendar(ctx, keyD1, "", true)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countRows(t, db, "calendars"))
}

func TestJobLogs_RingBuffer(t *testing.T) {
	db := newTestDB(t)
	repo := NewJobLogRepository(db)
	ctx := context.Background()
	start := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := repo.Start(ctx, model.JobCleanup, "run", start.Add(time.Duration(i)*time.Minute), 3)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, repo.Finish(ctx, ids[4], model.JobStatusSuccess, "deleted 2 dates", start.Add(5*time.Minute)))
	// Finishing an evicted record is a no-op.
	require.NoError(t, repo.Finish(ctx, ids[0], model.JobStatusError, "late", start))

	logs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, ids[4], logs[0].ID)
	assert.Equal(t, ids[2], logs[2].ID)
	assert.Equal(t, model.JobStatusSuccess, logs[0].Status)
	assert.Equal(t, "deleted 2 dates", logs[0].Message)
	require.NotNil(t, logs[0].FinishedAt)
	assert.Equal(t, model.JobStatusStarted, logs[1].Status)
	assert.Nil(t, logs[1].FinishedAt)

	limited, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStorageUnavailable(t *testing.T) {
	ctx := context.Background()

	t.Run("closed database", func(t *testing.T) {
		db := newTestDB(t)
		repo := NewAvailabilityRepository(db)
		logs := NewJobLogRepository(db)
		require.NoError(t, db.Close())

		_, err := repo.FindCalendar(ctx, keyD1)
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

		_, err = repo.ListCalendars(ctx)
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

		err = repo.WithTx(ctx, func(repository.AvailabilityRepository) error { return nil })
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)

		_, err = logs.Start(ctx, model.JobAutoSync, "run-1", time.Now(), 10)
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	})

	t.Run("unopenable file", func(t *testing.T) {
		_, err := NewDB(ctx, config.DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "missing", "dir", "availability.db"),
		})
		assert.ErrorIs(t, err, repository.ErrStorageUnavailable)
	})

	t.Run("not found stays not found", func(t *testing.T) {
		repo := NewAvailabilityRepository(newTestDB(t))
		_, err := repo.FindCalendar(ctx, keyD1)
		assert.ErrorIs(t, err, repository.ErrCalendarNotFound)
		assert.NotErrorIs(t, err, repository.ErrStorageUnavailable)
	})
}
