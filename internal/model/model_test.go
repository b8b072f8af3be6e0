package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, Date{Year: 2025, Month: time.January, Day: 10}, d)
	assert.Equal(t, "2025-01-10", d.String())

	_, err = ParseDate("10/01/2025")
	assert.Error(t, err)
}

func TestDate_Arithmetic(t *testing.T) {
	d := Date{Year: 2024, Month: time.December, Day: 30}

	assert.Equal(t, "2025-01-02", d.AddDays(3).String())
	assert.Equal(t, "2024-12-09", d.AddDays(-21).String())
	assert.True(t, d.Before(d.AddDays(1)))
	assert.False(t, d.AddDays(1).Before(d))
	assert.False(t, d.Before(d))
}

func TestDate_Valid(t *testing.T) {
	assert.True(t, Date{Year: 2024, Month: time.February, Day: 29}.Valid())
	assert.False(t, Date{}.Valid())
	assert.False(t, Date{Year: 2025, Month: time.February, Day: 29}.Valid())
	assert.False(t, Date{Year: 2025, Month: 13, Day: 1}.Valid())
}

func TestSnapshot_Validate(t *testing.T) {
	valid := Date{Year: 2025, Month: time.January, Day: 10}

	tests := []struct {
		name    string
		payload string
		snap    Snapshot
		wantErr string
	}{
		{
			name:    "well formed",
			payload: `{"days":[{"date":"2025-01-10","slots":[{"time":"09:00","booked":true}]}]}`,
		},
		{
			name:    "missing date",
			payload: `{"days":[{"slots":[{"time":"09:00","booked":true}]}]}`,
			wantErr: "missing or invalid date",
		},
		{
			name:    "missing time",
			payload: `{"days":[{"date":"2025-01-10","slots":[{"booked":true}]}]}`,
			wantErr: "missing or invalid time",
		},
		{
			name:    "unnormalized time",
			snap:    Snapshot{Days: []SnapshotDay{{Date: valid, Slots: []SnapshotSlot{{Time: "9:00"}}}}},
			wantErr: "missing or invalid time",
		},
		{
			name: "empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := tt.snap
			if tt.payload != "" {
				require.NoError(t, json.Unmarshal([]byte(tt.payload), &snap))
			}
			err := snap.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name string
		src  interface{}
		want string
	}{
		{"time", time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC), "2025-03-04"},
		{"text", "2025-03-04", "2025-03-04"},
		{"text with time", "2025-03-04T00:00:00Z", "2025-03-04"},
		{"bytes", []byte("2025-03-04"), "2025-03-04"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			require.NoError(t, d.Scan(tt.src))
			assert.Equal(t, tt.want, d.String())
		})
	}

	var d Date
	assert.Error(t, d.Scan(42))
}

func TestDate_JSON(t *testing.T) {
	var day SnapshotDay
	require.NoError(t, json.Unmarshal([]byte(`{"date":"2025-01-10","slots":[{"time":"9:00","booked":true}]}`), &day))
	assert.Equal(t, "2025-01-10", day.Date.String())
	require.Len(t, day.Slots, 1)
	assert.Equal(t, TimeOfDay("09:00"), day.Slots[0].Time)
	assert.True(t, day.Slots[0].Booked)

	out, err := json.Marshal(day.Date)
	require.NoError(t, err)
	assert.JSONEq(t, `"2025-01-10"`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"date":"tomorrow"}`), &day))
	assert.Error(t, json.Unmarshal([]byte(`{"date":"2025-01-10","slots":[{"time":"25:00"}]}`), &day))
}

func TestParseTimeOfDay(t *testing.T) {
	for in, want := range map[string]TimeOfDay{
		"09:00":    "09:00",
		"9:30":     "09:30",
		"20:30:00": "20:30",
	} {
		got, err := ParseTimeOfDay(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	for _, in := range []string{"", "24:00", "9", "noon"} {
		_, err := ParseTimeOfDay(in)
		assert.Error(t, err, in)
	}
}

func TestSlotGrid(t *testing.T) {
	grid := SlotGrid("09:00", "20:30", 30*time.Minute)

	require.Len(t, grid, 24)
	assert.Equal(t, TimeOfDay("09:00"), grid[0])
	assert.Equal(t, TimeOfDay("09:30"), grid[1])
	assert.Equal(t, TimeOfDay("20:30"), grid[23])

	assert.Empty(t, SlotGrid("09:00", "10:00", 0))
	assert.Empty(t, SlotGrid("10:00", "09:00", time.Hour))
}

func TestComputeSyncStatus(t *testing.T) {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	tests := []struct {
		name string
		last *time.Time
		want SyncStatus
	}{
		{"never synced", nil, SyncStatusUnknown},
		{"just now", ago(0), SyncStatusSynced},
		{"59 minutes", ago(59 * time.Minute), SyncStatusSynced},
		{"exactly one hour", ago(time.Hour), SyncStatusStale},
		{"23 hours", ago(23 * time.Hour), SyncStatusStale},
		{"exactly one day", ago(24 * time.Hour), SyncStatusOutdated},
		{"a week", ago(7 * 24 * time.Hour), SyncStatusOutdated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeSyncStatus(tt.last, now, time.Hour, 24*time.Hour))
		})
	}
}

func TestJobName_Valid(t *testing.T) {
	assert.True(t, JobAutoSync.Valid())
	assert.True(t, JobName("cleanup").Valid())
	assert.False(t, JobName("reindex").Valid())
}
