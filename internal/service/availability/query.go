package availability

import (
	"context"

	"github.com/jwalitptl/availability-api/internal/model"
	"github.com/jwalitptl/availability-api/internal/repository"
)

type AppointmentsQuery struct {
	DoctorID      string
	ClinicID      string
	TreatmentType string
	From          *model.Date
	To            *model.Date
}

// GetAppointments returns the stored availability of one calendar. Clinic and
// treatment are optional; when omitted the first matching calendar of the
// doctor is used. The default window starts today.
func (s *Service) GetAppointments(ctx context.Context, q AppointmentsQuery) (*model.AppointmentsView, error) {
	key, err := s.resolveKey(ctx, q)
	if err != nil {
		return nil, err
	}

	cal, err := s.repo.FindCalendar(ctx, key)
	if err != nil {
		return nil, err
	}

	from := s.Today()
	if q.From != nil {
		from = *q.From
	}
	to := from.AddDays(defaultViewDays)
	if q.To != nil {
		to = *q.To
	}
	if to.Before(from) {
		return nil, ErrInvalidRange
	}

	dates, err := s.repo.ListDatesInRange(ctx, cal.ID, from, to)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(dates))
	for _, d := range dates {
		ids = append(ids, d.ID)
	}
	slots, err := s.repo.ListSlotsByDates(ctx, ids)
	if err != nil {
		return nil, err
	}

	byDate := make(map[int64][]model.SnapshotSlot, len(dates))
	for _, slot := range slots {
		byDate[slot.DateID] = append(byDate[slot.DateID], model.SnapshotSlot{Time: slot.TimeOfDay, Booked: slot.IsBooked})
	}

	view := &model.AppointmentsView{
		Calendar:   *cal,
		SyncStatus: s.syncStatus(cal),
		Days:       make([]model.SnapshotDay, 0, len(dates)),
	}
	for _, d := range dates {
		daySlots := byDate[d.ID]
		if daySlots == nil {
			daySlots = []model.SnapshotSlot{}
		}
		view.Days = append(view.Days, model.SnapshotDay{Date: d.CalendarDate, Slots: daySlots})
	}
	return view, nil
}

func (s *Service) resolveKey(ctx context.Context, q AppointmentsQuery) (model.CalendarKey, error) {
	key := model.CalendarKey{DoctorID: q.DoctorID, ClinicID: q.ClinicID, TreatmentType: q.TreatmentType}
	if key.DoctorID == "" {
		return key, ErrInvalidKey
	}
	if key.ClinicID != "" && key.TreatmentType != "" {
		return key, nil
	}

	keys, err := s.repo.ListCalendarKeys(ctx)
	if err != nil {
		return key, err
	}
	for _, k := range keys {
		if k.DoctorID != key.DoctorID {
			continue
		}
		if key.ClinicID != "" && k.ClinicID != key.ClinicID {
			continue
		}
		if key.TreatmentType != "" && k.TreatmentType != key.TreatmentType {
			continue
		}
		return k, nil
	}
	return key, repository.ErrCalendarNotFound
}

// ListCalendars returns every calendar, least recently synced first.
func (s *Service) ListCalendars(ctx context.Context) ([]*model.Calendar, error) {
	return s.repo.ListCalendars(ctx)
}

func (s *Service) ListCalendarsWithStatus(ctx context.Context) ([]*model.CalendarStatus, error) {
	statuses, err := s.repo.ListCalendarStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, st := range statuses {
		st.SyncStatus = s.syncStatus(&st.Calendar)
	}
	return statuses, nil
}

func (s *Service) GetSyncStatus(ctx context.Context, key model.CalendarKey) (model.SyncStatus, error) {
	cal, err := s.repo.FindCalendar(ctx, key)
	if err != nil {
		return "", err
	}
	return s.syncStatus(cal), nil
}

func (s *Service) DeleteCalendar(ctx context.Context, calendarID int64) error {
	if err := s.repo.DeleteCalendar(ctx, calendarID); err != nil {
		return err
	}
	s.invalidateKeys()
	s.logger.Info("calendar deleted", "calendar_id", calendarID)
	return nil
}

// Ping reports whether storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
