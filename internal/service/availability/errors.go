package availability

import (
	"errors"
	"fmt"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

var (
	ErrNoDatesYet   = errors.New("calendar has no dates to extend from")
	ErrInvalidKey   = errors.New("doctor_id, clinic_id and treatment_type are required")
	ErrInvalidSlots = errors.New("invalid time slot grid")
	ErrInvalidRange = errors.New("to must not be before from")

	ErrAlreadyBooked = fmt.Errorf("%w: slot is already booked", repository.ErrAlreadyInState)
	ErrAlreadyFree   = fmt.Errorf("%w: slot is not booked", repository.ErrAlreadyInState)
)

// SyncFailure reports that the upstream snapshot for Key could not be
// fetched. Nothing was written when it is returned.
type SyncFailure struct {
	Key     model.CalendarKey
	Message string
	Err     error
}

func (f *SyncFailure) Error() string {
	return fmt.Sprintf("sync of calendar %s failed: %s", f.Key, f.Message)
}

func (f *SyncFailure) Unwrap() error {
	return f.Err
}

// IsSyncFailure reports whether err carries a SyncFailure.
func IsSyncFailure(err error) bool {
	var f *SyncFailure
	return errors.As(err, &f)
}
