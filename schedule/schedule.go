// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package schedule defines recurring medication schedules and resolves
// them to concrete instants in a caller-supplied time zone.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloudeng.io/datetime"
	"github.com/medtrack/medtrack/civil"
)

var (
	// ErrInvalidSchedule is returned for schedules that can never
	// produce a valid occurrence, such as an enabled schedule with no
	// days of the week set.
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrRangeExhausted is returned when the bounded forward scan for
	// the next occurrence finds nothing. It is unreachable for
	// schedules that pass Validate but is reported rather than looping.
	ErrRangeExhausted = errors.New("no occurrence within scan window")
)

// Frequency determines how a schedule generates occurrences.
type Frequency int

const (
	// Weekly generates occurrences on the schedule's days of the week.
	Weekly Frequency = iota
	// Daily generates occurrences every day; all seven days are set.
	Daily
	// AsNeeded schedules never generate occurrences automatically;
	// doses are logged by direct user action only.
	AsNeeded
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case AsNeeded:
		return "as-needed"
	default:
		return "weekly"
	}
}

func parseFrequency(v string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "weekly":
		return Weekly, nil
	case "daily":
		return Daily, nil
	case "as-needed", "as_needed":
		return AsNeeded, nil
	}
	return Weekly, fmt.Errorf("%w: unknown frequency: %q", ErrInvalidSchedule, v)
}

// DaysOfWeek is a fixed-size set of ISO weekdays, index 0 being Monday.
type DaysOfWeek [7]bool

var dayNames = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// EveryDay returns the set with all seven days present.
func EveryDay() DaysOfWeek {
	return DaysOfWeek{true, true, true, true, true, true, true}
}

// Weekdays returns the set Monday through Friday.
func Weekdays() DaysOfWeek {
	return DaysOfWeek{true, true, true, true, true, false, false}
}

// On reports whether the set contains the given weekday.
func (d DaysOfWeek) On(wd time.Weekday) bool {
	return d[(int(wd)+6)%7]
}

// IsZero reports whether no day is set.
func (d DaysOfWeek) IsZero() bool {
	return d == DaysOfWeek{}
}

func (d DaysOfWeek) String() string {
	names := make([]string, 0, 7)
	for i, set := range d {
		if set {
			names = append(names, dayNames[i])
		}
	}
	return strings.Join(names, ",")
}

// Parse parses a comma separated list of weekday names, eg. "mon,wed,fri".
// Three letter prefixes of the English names are accepted.
func (d *DaysOfWeek) Parse(v string) error {
	var parsed DaysOfWeek
	for _, f := range strings.Split(v, ",") {
		f = strings.ToLower(strings.TrimSpace(f))
		if len(f) < 3 {
			return fmt.Errorf("%w: invalid day: %q", ErrInvalidSchedule, f)
		}
		idx := -1
		for i, n := range dayNames {
			if strings.HasPrefix(f, n) {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: invalid day: %q", ErrInvalidSchedule, f)
		}
		parsed[idx] = true
	}
	*d = parsed
	return nil
}

// Schedule is a recurrence definition: a civil time of day on a set of
// weekdays. It carries no zone; the zone is supplied at resolution time.
type Schedule struct {
	Name      string
	Due       datetime.TimeOfDay
	Days      DaysOfWeek
	Frequency Frequency
	Enabled   bool
}

// Validate reports schedules that violate the model invariants: an
// enabled, non-as-needed schedule must have at least one day set, and a
// daily schedule must have all seven.
func (s Schedule) Validate() error {
	if s.Frequency == AsNeeded {
		return nil
	}
	if s.Enabled && s.Days.IsZero() {
		return fmt.Errorf("%w: %q: no days of week set", ErrInvalidSchedule, s.Name)
	}
	if s.Frequency == Daily && s.Days != EveryDay() {
		return fmt.Errorf("%w: %q: daily schedule must cover all days", ErrInvalidSchedule, s.Name)
	}
	return nil
}

// maxScanDays bounds the forward search in NextOccurrence. The weekday
// cycle is 7 days, so scanning the current date plus seven more always
// finds the next occurrence of a valid schedule.
const maxScanDays = 7

// NextOccurrence returns the earliest instant strictly after 'after' at
// which the schedule is due, resolved in loc. The second return value is
// false, with no error, when the schedule cannot generate occurrences:
// it is disabled, as-needed, or has no days set.
//
// Civil times that fall inside a DST gap or repeated hour are resolved by
// the civil package's policies, so a schedule due at a nominal gap hour
// still yields a single deterministic instant.
func (s Schedule) NextOccurrence(loc *time.Location, after time.Time) (time.Time, bool, error) {
	if !s.Enabled || s.Frequency == AsNeeded || s.Days.IsZero() {
		return time.Time{}, false, nil
	}
	day := civil.ToCivil(after, loc).Date
	for i := 0; i <= maxScanDays; i++ {
		if s.Days.On(weekdayOf(day)) {
			when, _ := civil.ToInstant(civil.DateTime{Date: day, Time: s.Due}, loc)
			if when.After(after) {
				return when, true, nil
			}
		}
		day = nextDay(day)
	}
	return time.Time{}, false, fmt.Errorf("%w: schedule %q after %v in %v", ErrRangeExhausted, s.Name, after, loc)
}

// IsDueOn reports whether the schedule generates an occurrence on the
// given civil date. As-needed and disabled schedules are never due.
func (s Schedule) IsDueOn(date datetime.CalendarDate) bool {
	if !s.Enabled || s.Frequency == AsNeeded {
		return false
	}
	return s.Days.On(weekdayOf(date))
}

// DueOn reports whether the schedule generates an occurrence on the civil
// date observed in loc at the given instant.
func (s Schedule) DueOn(t time.Time, loc *time.Location) bool {
	return s.IsDueOn(civil.ToCivil(t, loc).Date)
}

// The weekday of a calendar date is zone independent, so it can be
// computed in UTC.
func weekdayOf(date datetime.CalendarDate) time.Weekday {
	return time.Date(date.Year(), time.Month(date.Month()), date.Day(), 0, 0, 0, 0, time.UTC).Weekday()
}

func nextDay(date datetime.CalendarDate) datetime.CalendarDate {
	t := time.Date(date.Year(), time.Month(date.Month()), date.Day(), 12, 0, 0, 0, time.UTC)
	return datetime.CalendarDateFromTime(t.AddDate(0, 0, 1))
}
