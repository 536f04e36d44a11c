// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package adherence aggregates dose records over a time range into an
// adherence rate.
package adherence

import (
	"iter"
	"time"

	"cloudeng.io/datetime"
	"github.com/medtrack/medtrack/civil"
	"github.com/medtrack/medtrack/dose"
)

// Policy selects which records count towards the denominator.
type Policy int

const (
	// ExcludePending counts only resolved records: taken, missed or
	// skipped. Pending doses have no outcome yet and are not held
	// against the rate. This is the default.
	ExcludePending Policy = iota
	// IncludeAll counts every record in range, pending included.
	IncludeAll
)

// Rate returns the fraction of doses taken among the records whose
// scheduled instant falls in [start, end), per the policy. An empty
// denominator yields 0.0, not NaN.
func Rate(records iter.Seq[*dose.Record], start, end time.Time, policy Policy) float64 {
	taken, relevant := 0, 0
	for r := range records {
		at := r.ScheduledAt
		if at.Before(start) || !at.Before(end) {
			continue
		}
		switch r.Status() {
		case dose.Taken:
			taken++
			relevant++
		case dose.Missed, dose.Skipped:
			relevant++
		case dose.Pending:
			if policy == IncludeAll {
				relevant++
			}
		}
	}
	if relevant == 0 {
		return 0.0
	}
	return float64(taken) / float64(relevant)
}

// RateForDates evaluates Rate over a civil date range observed in loc,
// inclusive of both endpoint dates. The range boundaries are resolved
// with the civil converter so that DST days are bounded by their actual
// local midnights.
func RateForDates(records iter.Seq[*dose.Record], dr datetime.CalendarDateRange, loc *time.Location, policy Policy) float64 {
	midnight := datetime.NewTimeOfDay(0, 0, 0)
	start, _ := civil.ToInstant(civil.DateTime{Date: dr.From(), Time: midnight}, loc)
	dayAfter := datetime.CalendarDateFromTime(dr.To().Time(midnight, loc).Add(36 * time.Hour).In(loc))
	end, _ := civil.ToInstant(civil.DateTime{Date: dayAfter, Time: midnight}, loc)
	return Rate(records, start, end, policy)
}
