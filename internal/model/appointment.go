package model

import (
	"fmt"
	"time"
)

type TimeSlot struct {
	ID        int64     `json:"id" db:"id"`
	DateID    int64     `json:"date_id" db:"date_id"`
	TimeOfDay TimeOfDay `json:"time" db:"time_of_day"`
	IsBooked  bool      `json:"booked" db:"is_booked"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Snapshot is the full availability of one calendar as published upstream.
type Snapshot struct {
	Days []SnapshotDay `json:"days"`
}

type SnapshotDay struct {
	Date  Date           `json:"date"`
	Slots []SnapshotSlot `json:"slots"`
}

type SnapshotSlot struct {
	Time   TimeOfDay `json:"time"`
	Booked bool      `json:"booked"`
}

// Validate rejects a snapshot in which any day lacks a real calendar date or
// any slot lacks an "HH:MM" time. Absent JSON keys decode to zero values, so
// decoding alone does not catch them.
func (s Snapshot) Validate() error {
	for i, day := range s.Days {
		if !day.Date.Valid() {
			return fmt.Errorf("day %d: missing or invalid date %q", i, day.Date.String())
		}
		for j, slot := range day.Slots {
			if !slot.Time.Valid() {
				return fmt.Errorf("day %s slot %d: missing or invalid time %q", day.Date, j, string(slot.Time))
			}
		}
	}
	return nil
}

// SlotCount returns the number of slots across all days.
func (s Snapshot) SlotCount() int {
	n := 0
	for _, d := range s.Days {
		n += len(d.Slots)
	}
	return n
}

// AppointmentsView is the read model served to presentation clients.
type AppointmentsView struct {
	Calendar   Calendar      `json:"calendar"`
	SyncStatus SyncStatus    `json:"sync_status"`
	Days       []SnapshotDay `json:"days"`
}

type AppointmentQuery struct {
	DoctorID      string `form:"doctor_id" binding:"required"`
	ClinicID      string `form:"clinic_id"`
	TreatmentType string `form:"treatment_type"`
	From          string `form:"from" binding:"omitempty,civildate"`
	To            string `form:"to" binding:"omitempty,civildate"`
}

type BookingRequest struct {
	DoctorID      string `json:"doctor_id" binding:"required"`
	ClinicID      string `json:"clinic_id" binding:"required"`
	TreatmentType string `json:"treatment_type" binding:"required"`
	Date          string `json:"date" binding:"required,civildate"`
	Time          string `json:"time" binding:"required,timeofday"`
}

func (r BookingRequest) Key() CalendarKey {
	return CalendarKey{DoctorID: r.DoctorID, ClinicID: r.ClinicID, TreatmentType: r.TreatmentType}
}
