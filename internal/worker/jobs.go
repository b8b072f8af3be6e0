package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
	"github.com/jwalitptl/availability-api/internal/service/availability"
)

// Engine is the part of the availability service the lifecycle jobs drive.
type Engine interface {
	ListCalendars(ctx context.Context) ([]*model.Calendar, error)
	SyncCalendar(ctx context.Context, key model.CalendarKey) (*availability.SyncResult, error)
	CleanupOldAppointments(ctx context.Context, retentionDays int) (int64, error)
	ExtendCalendar(ctx context.Context, calendarID int64, weeks int) (int, error)
}

type jobFunc func(ctx context.Context) (string, error)

// autoSync syncs every calendar, least recently synced first. A failing
// calendar is counted and skipped; only lost storage aborts the run.
func (s *Scheduler) autoSync(ctx context.Context) (string, error) {
	calendars, err := s.engine.ListCalendars(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}

	var synced, failed int
	for _, cal := range calendars {
		_, err := s.engine.SyncCalendar(ctx, cal.CalendarKey)
		if err == nil {
			synced++
			continue
		}
		if errors.Is(err, repository.ErrStorageUnavailable) {
			return "", fmt.Errorf("aborted after %d of %d calendars: %w", synced+failed, len(calendars), err)
		}
		failed++
		if availability.IsSyncFailure(err) {
			s.logger.Warn("calendar sync failed", "calendar", cal.CalendarKey.String(), "error", err.Error())
			continue
		}
		s.logger.Error(err, "calendar sync could not be stored", "calendar", cal.CalendarKey.String())
	}

	return fmt.Sprintf("synced %d of %d calendars, %d failed", synced, len(calendars), failed), nil
}

func (s *Scheduler) cleanup(ctx context.Context) (string, error) {
	deleted, err := s.engine.CleanupOldAppointments(ctx, s.cfg.RetentionDays)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("deleted %d dates older than %d days", deleted, s.cfg.RetentionDays), nil
}

// extendHorizon adds one week to every calendar. Calendars without any
// date yet have nothing to continue from and are skipped.
func (s *Scheduler) extendHorizon(ctx context.Context) (string, error) {
	calendars, err := s.engine.ListCalendars(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list calendars: %w", err)
	}

	var extended, skipped int
	for _, cal := range calendars {
		if _, err := s.engine.ExtendCalendar(ctx, cal.ID, 1); err != nil {
			if errors.Is(err, availability.ErrNoDatesYet) {
				skipped++
				continue
			}
			return "", fmt.Errorf("failed to extend calendar %s: %w", cal.CalendarKey, err)
		}
		extended++
	}
	return fmt.Sprintf("extended %d calendars, skipped %d without dates", extended, skipped), nil
}
