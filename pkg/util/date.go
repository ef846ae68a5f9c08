package util

import (
	"fmt"
	"strconv"
	"time"
)

// DayLayout is the calendar-date format used on the wire and in storage.
const DayLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar day in t's location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MarketDay returns the exchange-local calendar day of a unix timestamp,
// given the exchange's offset from GMT in seconds.
func MarketDay(ts, gmtOffset int64) time.Time {
	return Day(time.Unix(ts+gmtOffset, 0).UTC())
}

// ParseDay accepts DayLayout, RFC3339 (with or without nanoseconds) or unix
// seconds and returns the calendar day.
func ParseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Day(t), nil
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return Day(time.Unix(ts, 0).UTC()), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// ParseDays parses every element with ParseDay.
func ParseDays(ss []string) ([]time.Time, error) {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		d, err := ParseDay(s)
		if err != nil {
			return nil, fmt.Errorf("date %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}
