// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package civil converts between absolute instants and local wall-clock
// ("civil") date-times in a named IANA time zone. Conversions are pure
// functions and apply explicit, deterministic policies for the local times
// that daylight saving transitions make non-existent or ambiguous.
package civil

import (
	"errors"
	"fmt"
	"time"

	"cloudeng.io/datetime"
)

// ErrUnknownZone is returned when a zone identifier cannot be resolved
// against the host's zone database.
var ErrUnknownZone = errors.New("unknown time zone")

// DateTime is a calendar date plus a time of day with no associated zone.
type DateTime struct {
	Date datetime.CalendarDate
	Time datetime.TimeOfDay
}

func (dt DateTime) String() string {
	return fmt.Sprintf("%v %v", dt.Date, dt.Time)
}

// Resolution reports how a civil time was mapped to an instant.
type Resolution int

const (
	// Exact means the civil time exists unambiguously in the zone.
	Exact Resolution = iota
	// GapAdjusted means the civil time fell inside a spring-forward gap
	// and was advanced to the first valid instant after the gap.
	GapAdjusted
	// AmbiguousEarlier means the civil time fell inside a fall-back
	// repeated hour and the earlier of the two candidate instants was
	// chosen.
	AmbiguousEarlier
)

func (r Resolution) String() string {
	switch r {
	case GapAdjusted:
		return "gap-adjusted"
	case AmbiguousEarlier:
		return "ambiguous-earlier"
	default:
		return "exact"
	}
}

// LoadZone resolves an IANA zone identifier such as "America/New_York".
// Unresolvable identifiers are reported as ErrUnknownZone.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty zone name", ErrUnknownZone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrUnknownZone, name, err)
	}
	return loc, nil
}

// DST shifts are one hour almost everywhere, thirty minutes on Lord Howe
// Island and two hours in a few historical rules.
var foldProbes = []time.Duration{30 * time.Minute, time.Hour, 2 * time.Hour}

// ToInstant maps a civil date-time in loc to an absolute instant, applying
// the gap and repeated-hour policies. For civil times inside a
// spring-forward gap the result is the nominal wall time advanced by the
// gap duration. For civil times inside a fall-back repeated hour the
// result is the earlier of the two candidates, that is the instant before
// the clock repeats.
func ToInstant(dt DateTime, loc *time.Location) (time.Time, Resolution) {
	t := dt.Date.Time(dt.Time, loc)
	if obs := ToCivil(t, loc); obs != dt {
		// Inside a spring-forward gap. time.Date may settle on either
		// side of the transition; when the rendered time falls short of
		// the request it is short by exactly the gap, and advancing by
		// that wall-clock error lands on the nominal time plus the gap.
		if d := wallDelta(dt, obs); d > 0 {
			t = t.Add(d)
		}
		return t, GapAdjusted
	}
	for _, p := range foldProbes {
		if e := t.Add(-p); ToCivil(e, loc) == dt {
			return e, AmbiguousEarlier
		}
	}
	for _, p := range foldProbes {
		// t.Add(p) renders the same civil time, so the hour repeats and
		// t, being p earlier, is the earlier of the two candidates.
		if ToCivil(t.Add(p), loc) == dt {
			return t, AmbiguousEarlier
		}
	}
	return t, Exact
}

// wallDelta returns the wall-clock difference a-b, ignoring zone rules.
func wallDelta(a, b DateTime) time.Duration {
	return a.Date.Time(a.Time, time.UTC).Sub(b.Date.Time(b.Time, time.UTC))
}

// ToCivil returns the civil date-time that a clock in loc shows at the
// given instant.
func ToCivil(t time.Time, loc *time.Location) DateTime {
	local := t.In(loc)
	return DateTime{
		Date: datetime.CalendarDateFromTime(local),
		Time: datetime.TimeOfDayFromTime(local),
	}
}

// Offset returns the UTC offset that loc's rules prescribe at the given
// instant. The rules are always evaluated at that instant, never cached,
// so successive zone changes cannot accumulate stale-offset drift.
func Offset(loc *time.Location, at time.Time) time.Duration {
	_, secs := at.In(loc).Zone()
	return time.Duration(secs) * time.Second
}

// OffsetChange returns the signed difference between next's and prev's UTC
// offsets at the given instant.
func OffsetChange(prev, next *time.Location, at time.Time) time.Duration {
	return Offset(next, at) - Offset(prev, at)
}
