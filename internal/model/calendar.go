package model

import (
	"time"
)

// CalendarKey is the natural key of a calendar.
type CalendarKey struct {
	DoctorID      string `json:"doctor_id" db:"doctor_id" form:"doctor_id"`
	ClinicID      string `json:"clinic_id" db:"clinic_id" form:"clinic_id"`
	TreatmentType string `json:"treatment_type" db:"treatment_type" form:"treatment_type"`
}

func (k CalendarKey) String() string {
	return k.DoctorID + "/" + k.ClinicID + "/" + k.TreatmentType
}

// DefaultName is used when a calendar is created without a display name.
func (k CalendarKey) DefaultName() string {
	return "Doctor " + k.DoctorID + " - Clinic " + k.ClinicID + " - " + k.TreatmentType
}

type Calendar struct {
	ID int64 `json:"id" db:"id"`
	CalendarKey
	Name         string     `json:"name" db:"name"`
	LastSyncedAt *time.Time `json:"last_synced_at" db:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

type SyncStatus string

const (
	SyncStatusUnknown  SyncStatus = "unknown"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusStale    SyncStatus = "stale"
	SyncStatusOutdated SyncStatus = "outdated"
)

// ComputeSyncStatus classifies the age of lastSynced: younger than fresh is
// synced, younger than outdated is stale, anything older is outdated.
func ComputeSyncStatus(lastSynced *time.Time, now time.Time, fresh, outdated time.Duration) SyncStatus {
	if lastSynced == nil || lastSynced.IsZero() {
		return SyncStatusUnknown
	}
	age := now.Sub(*lastSynced)
	switch {
	case age < fresh:
		return SyncStatusSynced
	case age < outdated:
		return SyncStatusStale
	default:
		return SyncStatusOutdated
	}
}

// CalendarStatus is a calendar together with its derived sync status.
type CalendarStatus struct {
	Calendar
	SyncStatus SyncStatus `json:"sync_status"`
	DateCount  int        `json:"date_count" db:"date_count"`
}

type DateAvailability struct {
	ID           int64 `json:"id" db:"id"`
	CalendarID   int64 `json:"calendar_id" db:"calendar_id"`
	CalendarDate Date  `json:"calendar_date" db:"calendar_date"`
}

type InitializeCalendarRequest struct {
	DoctorID      string   `json:"doctor_id" binding:"required"`
	ClinicID      string   `json:"clinic_id" binding:"required"`
	TreatmentType string   `json:"treatment_type" binding:"required"`
	Name          string   `json:"name"`
	Slots         []string `json:"slots" binding:"omitempty,dive,timeofday"`
}

func (r InitializeCalendarRequest) Key() CalendarKey {
	return CalendarKey{DoctorID: r.DoctorID, ClinicID: r.ClinicID, TreatmentType: r.TreatmentType}
}

type SyncCalendarRequest struct {
	DoctorID      string `json:"doctor_id" binding:"required"`
	ClinicID      string `json:"clinic_id" binding:"required"`
	TreatmentType string `json:"treatment_type" binding:"required"`
}

func (r SyncCalendarRequest) Key() CalendarKey {
	return CalendarKey{DoctorID: r.DoctorID, ClinicID: r.ClinicID, TreatmentType: r.TreatmentType}
}

type ExtendCalendarRequest struct {
	Weeks int `json:"weeks" binding:"omitempty,min=1,max=52"`
}
