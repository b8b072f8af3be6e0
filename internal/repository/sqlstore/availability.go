package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

type availabilityRepository struct {
	BaseRepository
	now func() time.Time
}

type Option func(*availabilityRepository)

// WithClock overrides the source of updated_at and last_synced_at stamps.
func WithClock(now func() time.Time) Option {
	return func(r *availabilityRepository) {
		r.now = now
	}
}

func NewAvailabilityRepository(db *sqlx.DB, opts ...Option) repository.AvailabilityRepository {
	r := &availabilityRepository{
		BaseRepository: NewBaseRepository(db),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *availabilityRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

func (r *availabilityRepository) WithTx(ctx context.Context, fn func(repository.AvailabilityRepository) error) error {
	return r.withTx(ctx, func(base BaseRepository) error {
		return fn(&availabilityRepository{BaseRepository: base, now: r.now})
	})
}

func (r *availabilityRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return wrap("ping database", err)
	}
	return nil
}

const calendarColumns = `id, doctor_id, clinic_id, treatment_type, name, last_synced_at, created_at`

func (r *availabilityRepository) UpsertCalendar(ctx context.Context, key model.CalendarKey, name string, touch bool) (int64, error) {
	insertName := name
	if insertName == "" {
		insertName = key.DefaultName()
	}
	now := r.timestamp()

	var query string
	var args []interface{}
	if touch {
		query = `
			INSERT INTO calendars (doctor_id, clinic_id, treatment_type, name, last_synced_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (doctor_id, clinic_id, treatment_type) DO UPDATE SET
				name = CASE WHEN ? <> '' THEN excluded.name ELSE calendars.name END,
				last_synced_at = excluded.last_synced_at
			RETURNING id`
		args = []interface{}{key.DoctorID, key.ClinicID, key.TreatmentType, insertName, now, now, name}
	} else {
		query = `
			INSERT INTO calendars (doctor_id, clinic_id, treatment_type, name, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (doctor_id, clinic_id, treatment_type) DO UPDATE SET
				doctor_id = excluded.doctor_id
			RETURNING id`
		args = []interface{}{key.DoctorID, key.ClinicID, key.TreatmentType, insertName, now}
	}

	var id int64
	if err := r.get(ctx, &id, query, args...); err != nil {
		return 0, wrap("upsert calendar", err)
	}
	return id, nil
}

func (r *availabilityRepository) FindCalendar(ctx context.Context, key model.CalendarKey) (*model.Calendar, error) {
	var cal model.Calendar
	err := r.get(ctx, &cal, `
		SELECT `+calendarColumns+`
		FROM calendars
		WHERE doctor_id = ? AND clinic_id = ? AND treatment_type = ?`,
		key.DoctorID, key.ClinicID, key.TreatmentType,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrCalendarNotFound
	}
	if err != nil {
		return nil, wrap("find calendar", err)
	}
	return &cal, nil
}

func (r *availabilityRepository) GetCalendar(ctx context.Context, id int64) (*model.Calendar, error) {
	var cal model.Calendar
	err := r.get(ctx, &cal, `SELECT `+calendarColumns+` FROM calendars WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrCalendarNotFound
	}
	if err != nil {
		return nil, wrap("get calendar", err)
	}
	return &cal, nil
}

func (r *availabilityRepository) ListCalendars(ctx context.Context) ([]*model.Calendar, error) {
	var calendars []*model.Calendar
	err := r.selectAll(ctx, &calendars, `
		SELECT `+calendarColumns+`
		FROM calendars
		ORDER BY last_synced_at ASC NULLS FIRST, id ASC`)
	if err != nil {
		return nil, wrap("list calendars", err)
	}
	return calendars, nil
}

func (r *availabilityRepository) ListCalendarStatuses(ctx context.Context) ([]*model.CalendarStatus, error) {
	var statuses []*model.CalendarStatus
	err := r.selectAll(ctx, &statuses, `
		SELECT c.id, c.doctor_id, c.clinic_id, c.treatment_type, c.name, c.last_synced_at, c.created_at,
			COUNT(d.id) AS date_count
		FROM calendars c
		LEFT JOIN calendar_dates d ON d.calendar_id = c.id
		GROUP BY c.id, c.doctor_id, c.clinic_id, c.treatment_type, c.name, c.last_synced_at, c.created_at
		ORDER BY c.last_synced_at ASC NULLS FIRST, c.id ASC`)
	if err != nil {
		return nil, wrap("list calendar statuses", err)
	}
	return statuses, nil
}

func (r *availabilityRepository) ListCalendarKeys(ctx context.Context) ([]model.CalendarKey, error) {
	var keys []model.CalendarKey
	err := r.selectAll(ctx, &keys, `
		SELECT DISTINCT doctor_id, clinic_id, treatment_type
		FROM calendars
		ORDER BY doctor_id, clinic_id, treatment_type`)
	if err != nil {
		return nil, wrap("list calendar keys", err)
	}
	return keys, nil
}

func (r *availabilityRepository) DeleteCalendar(ctx context.Context, id int64) error {
	res, err := r.exec(ctx, `DELETE FROM calendars WHERE id = ?`, id)
	if err != nil {
		return wrap("delete calendar", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.ErrCalendarNotFound
	}
	return nil
}

func (r *availabilityRepository) UpsertDate(ctx context.Context, calendarID int64, date model.Date) (int64, error) {
	var id int64
	err := r.get(ctx, &id, `
		INSERT INTO calendar_dates (calendar_id, calendar_date)
		VALUES (?, ?)
		ON CONFLICT (calendar_id, calendar_date) DO UPDATE SET
			calendar_id = excluded.calendar_id
		RETURNING id`,
		calendarID, date.String(),
	)
	if err != nil {
		return 0, wrap("upsert date", err)
	}
	return id, nil
}

func (r *availabilityRepository) MaxDate(ctx context.Context, calendarID int64) (model.Date, bool, error) {
	var d model.Date
	err := r.get(ctx, &d, `
		SELECT calendar_date
		FROM calendar_dates
		WHERE calendar_id = ?
		ORDER BY calendar_date DESC
		LIMIT 1`, calendarID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Date{}, false, nil
	}
	if err != nil {
		return model.Date{}, false, wrap("get max date", err)
	}
	return d, true, nil
}

func (r *availabilityRepository) ListDatesInRange(ctx context.Context, calendarID int64, from, to model.Date) ([]*model.DateAvailability, error) {
	var dates []*model.DateAvailability
	err := r.selectAll(ctx, &dates, `
		SELECT id, calendar_id, calendar_date
		FROM calendar_dates
		WHERE calendar_id = ? AND calendar_date >= ? AND calendar_date <= ?
		ORDER BY calendar_date ASC`,
		calendarID, from.String(), to.String(),
	)
	if err != nil {
		return nil, wrap("list dates", err)
	}
	return dates, nil
}

func (r *availabilityRepository) DeleteDatesBefore(ctx context.Context, cutoff model.Date) (int64, error) {
	res, err := r.exec(ctx, `DELETE FROM calendar_dates WHERE calendar_date < ?`, cutoff.String())
	if err != nil {
		return 0, wrap("delete dates", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("count deleted dates", err)
	}
	return n, nil
}

func (r *availabilityRepository) UpsertTimeSlot(ctx context.Context, dateID int64, at model.TimeOfDay, booked bool) (int64, error) {
	var id int64
	err := r.get(ctx, &id, `
		INSERT INTO time_slots (date_id, time_of_day, is_booked, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (date_id, time_of_day) DO UPDATE SET
			is_booked = excluded.is_booked,
			updated_at = excluded.updated_at
		RETURNING id`,
		dateID, at.String(), booked, r.timestamp(),
	)
	if err != nil {
		return 0, wrap("upsert time slot", err)
	}
	return id, nil
}

const slotColumns = `id, date_id, time_of_day, is_booked, updated_at`

func (r *availabilityRepository) ListSlots(ctx context.Context, dateID int64) ([]*model.TimeSlot, error) {
	var slots []*model.TimeSlot
	err := r.selectAll(ctx, &slots, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE date_id = ?
		ORDER BY time_of_day ASC`, dateID)
	if err != nil {
		return nil, wrap("list time slots", err)
	}
	return slots, nil
}

func (r *availabilityRepository) ListSlotsByDates(ctx context.Context, dateIDs []int64) ([]*model.TimeSlot, error) {
	if len(dateIDs) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE date_id IN (?)
		ORDER BY date_id ASC, time_of_day ASC`, dateIDs)
	if err != nil {
		return nil, wrap("build slot query", err)
	}

	var slots []*model.TimeSlot
	if err := r.selectAll(ctx, &slots, query, args...); err != nil {
		return nil, wrap("list time slots", err)
	}
	return slots, nil
}

// SetSlotBooked flips the booked flag with one conditional update so that
// concurrent callers cannot both succeed. When nothing was updated the
// cause is looked up afterwards.
func (r *availabilityRepository) SetSlotBooked(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay, booked bool) error {
	res, err := r.exec(ctx, `
		UPDATE time_slots
		SET is_booked = ?, updated_at = ?
		WHERE is_booked = ? AND id = (
			SELECT s.id
			FROM time_slots s
			JOIN calendar_dates d ON d.id = s.date_id
			JOIN calendars c ON c.id = d.calendar_id
			WHERE c.doctor_id = ? AND c.clinic_id = ? AND c.treatment_type = ?
				AND d.calendar_date = ? AND s.time_of_day = ?
		)`,
		booked, r.timestamp(), !booked,
		key.DoctorID, key.ClinicID, key.TreatmentType, date.String(), at.String(),
	)
	if err != nil {
		return wrap("update time slot", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update time slot", err)
	}
	if n > 0 {
		return nil
	}
	return r.missingSlotCause(ctx, key, date, at)
}

func (r *availabilityRepository) missingSlotCause(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error {
	cal, err := r.FindCalendar(ctx, key)
	if err != nil {
		return err
	}

	var dateID int64
	err = r.get(ctx, &dateID, `
		SELECT id FROM calendar_dates WHERE calendar_id = ? AND calendar_date = ?`,
		cal.ID, date.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrDateNotFound
	}
	if err != nil {
		return wrap("find date", err)
	}

	var slotID int64
	err = r.get(ctx, &slotID, `
		SELECT id FROM time_slots WHERE date_id = ? AND time_of_day = ?`,
		dateID, at.String(),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrSlotNotFound
	}
	if err != nil {
		return wrap("find time slot", err)
	}
	return repository.ErrAlreadyInState
}
