// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package schedule_test

import (
	"testing"
	"time"

	"cloudeng.io/datetime"
	"github.com/medtrack/medtrack/schedule"
)

func TestOccurrences(t *testing.T) {
	loc := loadZone(t, "America/New_York")
	s := schedule.Schedule{
		Name:    "mw",
		Due:     nt(8, 0),
		Days:    schedule.DaysOfWeek{true, false, true, false, false, false, false},
		Enabled: true,
	}
	jan := datetime.NewCalendarDateRange(nd(2024, 1, 1), nd(2024, 1, 31))
	times := []time.Time{}
	for when := range s.Occurrences(jan, loc) {
		times = append(times, when)
	}
	// January 2024 has five Mondays (1, 8, 15, 22, 29) and five
	// Wednesdays (3, 10, 17, 24, 31).
	if got, want := len(times), 10; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	if got, want := times[0], time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := times[9], time.Date(2024, 1, 31, 13, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	for i := 1; i < len(times); i++ {
		if !times[i].After(times[i-1]) {
			t.Errorf("out of order: %v before %v", times[i], times[i-1])
		}
	}
}

func TestOccurrencesSpanDST(t *testing.T) {
	loc := loadZone(t, "America/New_York")
	s := schedule.Schedule{
		Name:      "daily",
		Due:       nt(8, 0),
		Days:      schedule.EveryDay(),
		Frequency: schedule.Daily,
		Enabled:   true,
	}
	dr := datetime.NewCalendarDateRange(nd(2024, 3, 9), nd(2024, 3, 11))
	times := []time.Time{}
	for when := range s.Occurrences(dr, loc) {
		times = append(times, when)
	}
	// One per day; the spring-forward day's occurrence is an hour
	// closer to the previous day's in absolute terms.
	want := []time.Time{
		time.Date(2024, 3, 9, 13, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
	}
	if got := len(times); got != len(want) {
		t.Fatalf("got %d, want %d", got, len(want))
	}
	for i := range want {
		if !times[i].Equal(want[i]) {
			t.Errorf("%d: got %v, want %v", i, times[i], want[i])
		}
	}
}

func TestCalendar(t *testing.T) {
	cfg, err := schedule.ParseConfig([]byte(medications_config))
	if err != nil {
		t.Fatal(err)
	}
	loc := loadZone(t, "America/New_York")
	cal := schedule.NewCalendar(cfg, loc)

	// Monday: lisinopril 08:00, metformin 08:00 and 21:30. The
	// as-needed and disabled schedules contribute nothing.
	entries := cal.Scheduled(nd(2024, 1, 15))
	if got, want := len(entries), 3; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].When.Before(entries[i-1].When) {
			t.Errorf("out of order: %v before %v", entries[i], entries[i-1])
		}
	}
	if got, want := entries[2].Medication, "metformin"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := entries[2].When, time.Date(2024, 1, 16, 2, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	// Saturday: only the daily metformin doses.
	entries = cal.Scheduled(nd(2024, 1, 20))
	if got, want := len(entries), 2; got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
	for _, e := range entries {
		if got, want := e.Medication, "metformin"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
