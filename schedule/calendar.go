// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule

import (
	"iter"
	"sort"
	"time"

	"cloudeng.io/datetime"
)

// Occurrences returns the instants within the calendar date range at
// which the schedule is due, resolved in loc. The range is interpreted as
// civil dates in loc, inclusive of both endpoints.
func (s Schedule) Occurrences(dr datetime.CalendarDateRange, loc *time.Location) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		midnight := datetime.NewTimeOfDay(0, 0, 0)
		after := dr.From().Time(midnight, loc).Add(-time.Nanosecond)
		end := nextDay(dr.To()).Time(midnight, loc)
		for {
			when, ok, err := s.NextOccurrence(loc, after)
			if !ok || err != nil || !when.Before(end) {
				return
			}
			if !yield(when) {
				return
			}
			after = when
		}
	}
}

// Calendar presents the occurrences of every schedule in a config, day by
// day, in a single zone.
type Calendar struct {
	medications []Medication
	loc         *time.Location
}

func NewCalendar(cfg Config, loc *time.Location) *Calendar {
	return &Calendar{medications: cfg.Medications, loc: loc}
}

// CalendarEntry is one scheduled dose on a given day.
type CalendarEntry struct {
	Medication string
	Schedule   string
	When       time.Time
}

// Scheduled returns the doses due on the given civil date, ordered by
// time of day.
func (c *Calendar) Scheduled(date datetime.CalendarDate) []CalendarEntry {
	day := datetime.NewCalendarDateRange(date, date)
	entries := make([]CalendarEntry, 0, 10)
	for _, med := range c.medications {
		for _, sched := range med.Schedules {
			for when := range sched.Occurrences(day, c.loc) {
				entries = append(entries, CalendarEntry{
					Medication: med.Name,
					Schedule:   sched.Name,
					When:       when,
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].When.Before(entries[j].When)
	})
	return entries
}
