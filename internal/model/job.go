package model

import (
	"time"
)

type JobName string

const (
	JobAutoSync      JobName = "auto_sync"
	JobCleanup       JobName = "cleanup"
	JobExtendHorizon JobName = "extend_horizon"
)

// JobNames lists the fixed set of lifecycle jobs.
var JobNames = []JobName{JobAutoSync, JobCleanup, JobExtendHorizon}

func (n JobName) Valid() bool {
	for _, j := range JobNames {
		if j == n {
			return true
		}
	}
	return false
}

type JobStatus string

const (
	JobStatusStarted JobStatus = "started"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

type JobLog struct {
	ID         int64      `json:"id" db:"id"`
	JobName    JobName    `json:"job_name" db:"job_name"`
	RunID      string     `json:"run_id" db:"run_id"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status     JobStatus  `json:"status" db:"status"`
	Message    string     `json:"message" db:"message"`
}

// JobInfo describes a scheduled job for the ops surface.
type JobInfo struct {
	Name     JobName    `json:"name"`
	Interval string     `json:"interval"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	PrevRun  *time.Time `json:"prev_run,omitempty"`
}
