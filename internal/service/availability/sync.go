package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

type SyncResult struct {
	CalendarID  int64             `json:"calendar_id"`
	Key         model.CalendarKey `json:"calendar"`
	SyncedDates int               `json:"synced_dates"`
	SyncedSlots int               `json:"synced_slots"`
	SyncedAt    time.Time         `json:"synced_at"`
}

// SyncCalendar merges the upstream snapshot of key into local state.
// Dates and slots missing from the snapshot are left alone; only the cleanup
// horizon removes data. A fetch failure or a malformed snapshot returns
// *SyncFailure and writes nothing. Storage errors are returned as they are.
func (s *Service) SyncCalendar(ctx context.Context, key model.CalendarKey) (*SyncResult, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	start := time.Now()

	snapshot, err := s.fetch(ctx, key)
	if err != nil {
		s.metrics.SyncResults.WithLabelValues("upstream_error").Inc()
		return nil, &SyncFailure{Key: key, Message: err.Error(), Err: err}
	}

	result := &SyncResult{Key: key}
	err = s.repo.WithTx(ctx, func(tx repository.AvailabilityRepository) error {
		calID, err := tx.UpsertCalendar(ctx, key, "", true)
		if err != nil {
			return err
		}
		result.CalendarID = calID

		for _, day := range snapshot.Days {
			dateID, err := tx.UpsertDate(ctx, calID, day.Date)
			if err != nil {
				return err
			}
			result.SyncedDates++

			for _, slot := range day.Slots {
				if _, err := tx.UpsertTimeSlot(ctx, dateID, slot.Time, slot.Booked); err != nil {
					return err
				}
				result.SyncedSlots++
			}
		}
		return nil
	})
	if err != nil {
		s.metrics.SyncResults.WithLabelValues("storage_error").Inc()
		return nil, err
	}

	result.SyncedAt = s.now().UTC()
	s.metrics.SyncResults.WithLabelValues("success").Inc()
	s.metrics.SyncDuration.Observe(time.Since(start).Seconds())
	s.metrics.SyncedSlots.Add(float64(result.SyncedSlots))

	s.logger.Info("calendar synced",
		"calendar", key.String(),
		"dates", result.SyncedDates,
		"slots", result.SyncedSlots,
	)
	s.invalidateKeys()
	s.publish(ctx, EventSynced, result)
	return result, nil
}

func (s *Service) fetch(ctx context.Context, key model.CalendarKey) (*model.Snapshot, error) {
	if s.fetcher == nil {
		return nil, errors.New("no upstream source configured")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	snapshot, err := s.fetcher.FetchSnapshot(fetchCtx, key)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return nil, errors.New("upstream returned an empty snapshot")
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upstream snapshot: %w", err)
	}
	return snapshot, nil
}

// InitializeCalendar creates key (if needed) with the full horizon of dates
// starting today, each holding slots (or the default grid). Existing slots
// keep their booked flag.
func (s *Service) InitializeCalendar(ctx context.Context, key model.CalendarKey, name string, slots []model.TimeOfDay) (int64, error) {
	if err := validKey(key); err != nil {
		return 0, err
	}
	grid, err := s.grid(slots)
	if err != nil {
		return 0, err
	}

	today := s.Today()
	var calID int64
	err = s.repo.WithTx(ctx, func(tx repository.AvailabilityRepository) error {
		id, err := tx.UpsertCalendar(ctx, key, name, false)
		if err != nil {
			return err
		}
		calID = id

		for i := 0; i < s.cfg.HorizonDays; i++ {
			if err := populateDate(ctx, tx, calID, today.AddDays(i), grid); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.invalidateKeys()
	s.logger.Info("calendar initialized", "calendar", key.String(), "days", s.cfg.HorizonDays)
	return calID, nil
}

// ExtendCalendar appends 7*weeks consecutive dates after the calendar's
// last date, each holding the default grid.
func (s *Service) ExtendCalendar(ctx context.Context, calendarID int64, weeks int) (int, error) {
	if weeks <= 0 {
		weeks = 1
	}
	if _, err := s.repo.GetCalendar(ctx, calendarID); err != nil {
		return 0, err
	}

	last, ok, err := s.repo.MaxDate(ctx, calendarID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNoDatesYet
	}

	days := DaysPerWeek * weeks
	err = s.repo.WithTx(ctx, func(tx repository.AvailabilityRepository) error {
		for i := 1; i <= days; i++ {
			if err := populateDate(ctx, tx, calendarID, last.AddDays(i), s.cfg.DefaultSlots); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return days, nil
}

// CleanupOldAppointments deletes every date older than today minus
// retentionDays across all calendars, together with its slots.
func (s *Service) CleanupOldAppointments(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = s.cfg.RetentionDays
	}
	cutoff := s.Today().AddDays(-retentionDays)

	deleted, err := s.repo.DeleteDatesBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.logger.Info("old dates removed", "cutoff", cutoff.String(), "deleted", deleted)
	return deleted, nil
}

func (s *Service) grid(slots []model.TimeOfDay) ([]model.TimeOfDay, error) {
	if len(slots) == 0 {
		return s.cfg.DefaultSlots, nil
	}
	grid := make([]model.TimeOfDay, 0, len(slots))
	for _, raw := range slots {
		t, err := model.ParseTimeOfDay(string(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSlots, err)
		}
		grid = append(grid, t)
	}
	return grid, nil
}

// populateDate makes sure date exists with every time in grid. Slots that
// already exist are not touched.
func populateDate(ctx context.Context, tx repository.AvailabilityRepository, calendarID int64, date model.Date, grid []model.TimeOfDay) error {
	dateID, err := tx.UpsertDate(ctx, calendarID, date)
	if err != nil {
		return err
	}

	existing, err := tx.ListSlots(ctx, dateID)
	if err != nil {
		return err
	}
	have := make(map[model.TimeOfDay]bool, len(existing))
	for _, slot := range existing {
		have[slot.TimeOfDay] = true
	}

	for _, t := range grid {
		if have[t] {
			continue
		}
		if _, err := tx.UpsertTimeSlot(ctx, dateID, t, false); err != nil {
			return err
		}
	}
	return nil
}
