package availability

import (
	"context"
	"errors"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

type BookingEvent struct {
	model.CalendarKey
	Date model.Date      `json:"date"`
	Time model.TimeOfDay `json:"time"`
}

// Book marks the slot as booked. Exactly one of several concurrent callers
// succeeds; the others get ErrAlreadyBooked.
func (s *Service) Book(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error {
	return s.setBooked(ctx, "book", key, date, at, true)
}

// Cancel frees the slot, returning ErrAlreadyFree if it was not booked.
func (s *Service) Cancel(ctx context.Context, key model.CalendarKey, date model.Date, at model.TimeOfDay) error {
	return s.setBooked(ctx, "cancel", key, date, at, false)
}

func (s *Service) setBooked(ctx context.Context, action string, key model.CalendarKey, date model.Date, at model.TimeOfDay, booked bool) error {
	err := s.repo.SetSlotBooked(ctx, key, date, at, booked)
	switch {
	case err == nil:
		s.metrics.Bookings.WithLabelValues(action, "ok").Inc()
	case errors.Is(err, repository.ErrAlreadyInState):
		s.metrics.Bookings.WithLabelValues(action, "conflict").Inc()
		s.logger.Debug("slot already in requested state", "action", action, "calendar", key.String(), "date", date.String(), "time", at.String())
		if booked {
			return ErrAlreadyBooked
		}
		return ErrAlreadyFree
	default:
		s.metrics.Bookings.WithLabelValues(action, "error").Inc()
		return err
	}

	event := EventBooked
	if !booked {
		event = EventCancelled
	}
	s.publish(ctx, event, BookingEvent{CalendarKey: key, Date: date, Time: at})
	return nil
}
