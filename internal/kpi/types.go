package kpi

import (
	"strings"
	"time"
)

// TimestampLayout is the hour-resolution key of a time slice
const TimestampLayout = "2006-01-02 15:04"

// Reading is one hourly measurement of a detector
type Reading struct {
	DetectorID string
	Day        time.Time
	Hour       int
	Quality    float64
	// Values holds the KPI columns that carried a number; absent keys are nulls
	Values map[string]float64
}

// Timestamp returns the slice key "YYYY-MM-DD HH:00"
func (r Reading) Timestamp() string {
	return TimestampKey(r.Day, r.Hour)
}

// Value returns a KPI column and whether it was present
func (r Reading) Value(field string) (float64, bool) {
	v, ok := r.Values[field]
	return v, ok
}

// TimestampKey formats a day and hour as a slice key
func TimestampKey(day time.Time, hour int) string {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC).Format(TimestampLayout)
}

// ParseTimestamp parses a slice key
func ParseTimestamp(ts string) (time.Time, error) {
	return time.Parse(TimestampLayout, ts)
}

// SafeTimestamp returns the filesystem-safe form of a slice key
func SafeTimestamp(ts string) string {
	return strings.ReplaceAll(ts, ":", "-")
}

// LoadStats counts what happened to the raw rows
type LoadStats struct {
	Rows         int
	Kept         int
	BelowQuality int
	Malformed    int
}

// Dataset is the quality-filtered content of a KPI file
type Dataset struct {
	Readings []Reading
	// Columns lists the KPI columns present in the source header
	Columns map[string]bool
	Stats   LoadStats
}

// HasColumn reports whether the source carried a KPI column
func (d *Dataset) HasColumn(field string) bool {
	return d.Columns[field]
}
