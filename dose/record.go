// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package dose manages dose records: immutable facts about individual
// schedule occurrences and the state machine that tracks whether each
// dose was taken, missed or skipped.
package dose

import (
	"time"

	"cloudeng.io/algo/container/list"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a dose record.
type Status int

const (
	// Pending is the initial state of every materialized record.
	Pending Status = iota
	// Taken records that the dose was taken, at Record.TakenAt.
	Taken
	// Missed records that the dose was not taken.
	Missed
	// Skipped records that the dose was deliberately skipped.
	Skipped
)

func (s Status) String() string {
	switch s {
	case Taken:
		return "taken"
	case Missed:
		return "missed"
	case Skipped:
		return "skipped"
	default:
		return "pending"
	}
}

// Record is one occurrence of a schedule. ScheduledAt is the UTC instant
// the dose was due, computed once when the record is materialized and
// never recomputed; zone changes after that point cannot move it. Zone is
// the IANA identifier that was in effect at materialization, retained for
// display and for large-offset-change warnings.
type Record struct {
	ID          uuid.UUID
	Schedule    string
	ScheduledAt time.Time
	Zone        string

	status  Status
	takenAt time.Time

	listID list.DoubleID[*Record]
}

// Status returns the record's current lifecycle state.
func (r *Record) Status() Status {
	return r.status
}

// TakenAt returns the instant the dose was taken. It is the zero time
// unless Status is Taken.
func (r *Record) TakenAt() time.Time {
	return r.takenAt
}
