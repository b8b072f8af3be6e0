package handler

import (
	"errors"

	"github.com/jwalitptl/availability-api/internal/middleware"
	"github.com/jwalitptl/availability-api/internal/repository"
	"github.com/jwalitptl/availability-api/internal/service/availability"
	"github.com/jwalitptl/availability-api/internal/worker"
	apperrors "github.com/jwalitptl/availability-api/pkg/errors"
)

// MsgSlotUnavailable is returned when a booking lost the race for a slot.
const MsgSlotUnavailable = "slot no longer available"

// Translate maps domain errors onto API errors. Unknown errors stay as they
// are and are reported as internal errors.
func Translate(err error) error {
	var failure *availability.SyncFailure
	switch {
	case err == nil:
		return nil
	case errors.As(err, &failure):
		return apperrors.Upstream(failure.Message, err)
	case errors.Is(err, repository.ErrStorageUnavailable):
		return apperrors.Unavailable(err)
	case errors.Is(err, repository.ErrCalendarNotFound):
		return apperrors.NotFound("calendar", err)
	case errors.Is(err, repository.ErrDateNotFound):
		return apperrors.NotFound("date", err)
	case errors.Is(err, repository.ErrSlotNotFound):
		return apperrors.NotFound("time slot", err)
	case errors.Is(err, availability.ErrNoDatesYet):
		return apperrors.NotFound("calendar dates", err)
	case errors.Is(err, worker.ErrUnknownJob):
		return apperrors.NotFound("job", err)
	case errors.Is(err, availability.ErrAlreadyBooked):
		return apperrors.Conflict(MsgSlotUnavailable, err)
	case errors.Is(err, repository.ErrAlreadyInState):
		return apperrors.Conflict("slot is not booked", err)
	case errors.Is(err, availability.ErrInvalidKey), errors.Is(err, availability.ErrInvalidSlots),
		errors.Is(err, availability.ErrInvalidRange):
		return apperrors.BadRequest(err.Error(), err)
	}
	return err
}

// BindError wraps a request binding failure as a bad request.
func BindError(err error) error {
	return apperrors.BadRequest(middleware.DescribeBindError(err), err)
}
