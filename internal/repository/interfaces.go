package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jwalitptl/availability-api/internal/model"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrDateNotFound     = errors.New("date not found")
	ErrSlotNotFound     = errors.New("time slot not found")
	// ErrAlreadyInState is returned when a slot already has the requested booked flag.
	ErrAlreadyInState = errors.New("time slot already in requested state")
	// ErrStorageUnavailable wraps connection-level failures of the store.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// All repository interfaces in one file
type (
	// AvailabilityRepository persists calendars, their dates and time slots.
	AvailabilityRepository interface {
		UpsertCalendar(ctx context.Context, key model.CalendarKey, name string, touch bool) (int64, error)
		FindCalendar(ctx context.Context, key model.CalendarKey) (*model.Calendar, error)
		GetCalendar(ctx context.Context, id int64) (*model.Calendar, error)
		// ListCalendars orders least recently synced first, never synced before all others.
		ListCalendars(ctx context.Context) ([]*model.Calendar, error)
		ListCalendarStatuses(ctx context.Context) ([]*model.CalendarStatus, error)
		ListCalendarKeys(ctx context.Context) ([]model.CalendarKey, error)
		DeleteCalendar(ctx context.Context, id int64) error

		UpsertDate(ctx context.Context, calendarID int64, date model.Date) (int64, error)
		MaxDate(ctx context.Context, calendarID int64) (model.Date, bool, error)
		ListDatesInRange(ctx context.Context, calendarID int64, from, to model.Date) ([]*model.DateAvailability, error)
		DeleteDatesBefore(ctx context.Context, cutoff model.Date) (int64, error)

		UpsertTimeSlot(ctx context.Context, dateID int64, at model.TimeOfDay, booked bool) (int64, error)
		ListSlots(ctx context.Context, dateID int64) ([]*model.TimeSlot, error)
		ListSlotsByDates(ctx context.Context, dateIDs []int64) ([]*model.TimeSlot, error)
		SetSlotBooked(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay, booked bool) error

		// WithTx runs fn against a repository bound to a single transaction.
		WithTx(ctx context.Context, fn func(AvailabilityRepository) error) error
		Ping(ctx context.Context) error
	}

	// JobLogRepository is the bounded run log of the lifecycle jobs.
	JobLogRepository interface {
		// Start records a started run and evicts records beyond capacity.
		Start(ctx context.Context, name model.JobName, runID string, startedAt time.Time, capacity int) (int64, error)
		Finish(ctx context.Context, id int64, status model.JobStatus, message string, finishedAt time.Time) error
		Recent(ctx context.Context, limit int) ([]*model.JobLog, error)
	}
)
