package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimeOfDay is a minute-precision wall clock time in "HH:MM" form.
type TimeOfDay string

// ParseTimeOfDay accepts "H:MM", "HH:MM" and "HH:MM:SS" and normalizes to "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDay(t.Format("15:04")), nil
		}
	}
	return "", fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	return string(t)
}

// Valid reports whether t is in the normalized "HH:MM" form.
func (t TimeOfDay) Valid() bool {
	parsed, err := ParseTimeOfDay(string(t))
	return err == nil && parsed == t
}

// Minutes returns the minutes since midnight.
func (t TimeOfDay) Minutes() int {
	parsed, err := time.Parse("15:04", string(t))
	if err != nil {
		return -1
	}
	return parsed.Hour()*60 + parsed.Minute()
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("time must be a string: %w", err)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// SlotGrid returns every time from start to end inclusive in step increments.
func SlotGrid(start, end TimeOfDay, step time.Duration) []TimeOfDay {
	if step <= 0 {
		return nil
	}
	from, to := start.Minutes(), end.Minutes()
	if from < 0 || to < 0 {
		return nil
	}
	stepMin := int(step / time.Minute)
	if stepMin <= 0 {
		return nil
	}

	var grid []TimeOfDay
	for m := from; m <= to; m += stepMin {
		grid = append(grid, TimeOfDay(fmt.Sprintf("%02d:%02d", m/60, m%60)))
	}
	return grid
}
