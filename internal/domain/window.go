package domain

import (
	"fmt"
	"sort"
	"time"
)

// HourRange is a [start, end) range of local hours.
type HourRange [2]int

// Windows maps a named time-of-day window ("morning", "day", ...) to its hour range.
type Windows map[string]HourRange

// DefaultWindows returns the morning/day/evening windows every user starts with.
func DefaultWindows() Windows {
	return Windows{
		"morning": {9, 12},
		"day":     {12, 17},
		"evening": {17, 21},
	}
}

// Validate rejects empty sets and ranges outside 0..24 or with start >= end.
func (w Windows) Validate() error {
	if len(w) == 0 {
		return fmt.Errorf("%w: no windows", ErrInvalidWindow)
	}
	for name, r := range w {
		if r[0] < 0 || r[1] > 24 || r[0] >= r[1] {
			return fmt.Errorf("%w: %s=[%d,%d)", ErrInvalidWindow, name, r[0], r[1])
		}
	}
	return nil
}

// Names returns window names in sorted order.
func (w Windows) Names() []string {
	names := make([]string, 0, len(w))
	for n := range w {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// InWindow returns true if local time (minutes since midnight) is inside the window.
// Supports wrap-around windows like 22:00–08:00 (fromM > toM).
func InWindow(localM, fromM, toM int) bool {
	if fromM == toM {
		return false // zero-length window
	}
	if fromM < toM {
		return localM >= fromM && localM < toM
	}
	// wrap: [from..1440) U [0..to)
	return localM >= fromM || localM < toM
}

// MinuteOfDay returns minutes since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// StartOfDay returns local midnight of the day containing t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// DaysSince counts whole days elapsed between then and now (floor), never negative.
func DaysSince(now, then time.Time) int {
	d := now.Sub(then)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
