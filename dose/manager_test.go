// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dose_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtrack/medtrack/dose"
	"github.com/medtrack/medtrack/internal/testutil"
)

var due = time.Date(2024, 1, 15, 13, 0, 0, 0, time.UTC)

func newManager(now time.Time) (*dose.Manager, *testutil.FixedTimeSource) {
	ts := testutil.NewFixedTimeSource(now)
	return dose.NewManager(dose.WithTimeSource(ts)), ts
}

func TestMaterialize(t *testing.T) {
	m, _ := newManager(due)
	r, created := m.Materialize("lisinopril#0", due, "America/New_York")
	require.True(t, created)
	assert.Equal(t, dose.Pending, r.Status())
	assert.Equal(t, due, r.ScheduledAt)
	assert.Equal(t, "America/New_York", r.Zone)
	assert.True(t, r.TakenAt().IsZero())
	assert.NotEqual(t, r.ID.String(), "")

	// Materializing the same occurrence again is idempotent.
	again, created := m.Materialize("lisinopril#0", due, "America/New_York")
	assert.False(t, created)
	assert.Same(t, r, again)

	// The same instant for a different schedule is a distinct record.
	other, created := m.Materialize("metformin#0", due, "America/New_York")
	require.True(t, created)
	assert.NotSame(t, r, other)

	pending := 0
	for range m.Pending() {
		pending++
	}
	assert.Equal(t, 2, pending)
}

func TestMaterializeNormalizesUTC(t *testing.T) {
	m, _ := newManager(due)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	r, _ := m.Materialize("a", due.In(loc), "America/New_York")
	assert.Equal(t, time.UTC, r.ScheduledAt.Location())
	assert.True(t, r.ScheduledAt.Equal(due))

	// The same instant expressed in another zone dedupes to the same
	// record.
	_, created := m.Materialize("a", due, "Asia/Tokyo")
	assert.False(t, created)
}

func TestMarkTaken(t *testing.T) {
	m, _ := newManager(due.Add(10 * time.Minute))
	r, _ := m.Materialize("a", due, "America/New_York")

	at := due.Add(5 * time.Minute)
	require.NoError(t, m.MarkTaken(r, at))
	assert.Equal(t, dose.Taken, r.Status())
	assert.True(t, r.TakenAt().Equal(at))

	for range m.Pending() {
		t.Fatal("taken record still pending")
	}

	// taken -> taken is illegal without a reset.
	err := m.MarkTaken(r, at.Add(time.Minute))
	assert.ErrorIs(t, err, dose.ErrInvalidTransition)
	assert.True(t, r.TakenAt().Equal(at), "taken-at must not be overwritten")
}

func TestMarkTakenBounds(t *testing.T) {
	now := due.Add(10 * time.Minute)
	m, _ := newManager(now)

	// More than the forward-skew tolerance ahead of now.
	r, _ := m.Materialize("a", due, "America/New_York")
	err := m.MarkTaken(r, now.Add(6*time.Minute))
	assert.ErrorIs(t, err, dose.ErrInvalidTransition)
	assert.Equal(t, dose.Pending, r.Status())

	// Just inside the tolerance.
	require.NoError(t, m.MarkTaken(r, now.Add(4*time.Minute)))

	// Before the scheduled instant by more than the look-back window.
	m2 := dose.NewManager(
		dose.WithTimeSource(testutil.NewFixedTimeSource(now)),
		dose.WithMaxLookBack(time.Hour),
	)
	r2, _ := m2.Materialize("b", due, "America/New_York")
	err = m2.MarkTaken(r2, due.Add(-2*time.Hour))
	assert.ErrorIs(t, err, dose.ErrInvalidTransition)
	require.NoError(t, m2.MarkTaken(r2, due.Add(-30*time.Minute)))
}

func TestMarkMissedAndSkipped(t *testing.T) {
	m, _ := newManager(due)
	missed, _ := m.Materialize("a", due, "America/New_York")
	skipped, _ := m.Materialize("b", due, "America/New_York")

	require.NoError(t, m.MarkMissed(missed))
	assert.Equal(t, dose.Missed, missed.Status())
	require.NoError(t, m.MarkSkipped(skipped))
	assert.Equal(t, dose.Skipped, skipped.Status())

	// No transitions between terminal states.
	assert.ErrorIs(t, m.MarkSkipped(missed), dose.ErrInvalidTransition)
	assert.ErrorIs(t, m.MarkMissed(skipped), dose.ErrInvalidTransition)
	assert.ErrorIs(t, m.MarkTaken(missed, due), dose.ErrInvalidTransition)
}

func TestResetToPending(t *testing.T) {
	m, _ := newManager(due.Add(time.Minute))
	r, _ := m.Materialize("a", due, "America/New_York")
	require.NoError(t, m.MarkTaken(r, due))

	require.NoError(t, m.ResetToPending(r))
	assert.Equal(t, dose.Pending, r.Status())
	assert.True(t, r.TakenAt().IsZero())

	pending := 0
	for range m.Pending() {
		pending++
	}
	assert.Equal(t, 1, pending)

	// A correction can now be recorded.
	require.NoError(t, m.MarkMissed(r))
	require.NoError(t, m.ResetToPending(r))
	assert.ErrorIs(t, m.ResetToPending(r), dose.ErrInvalidTransition)
}

func TestScheduledAtImmutable(t *testing.T) {
	m, _ := newManager(due.Add(time.Minute))
	r, _ := m.Materialize("a", due, "America/New_York")
	orig := r.ScheduledAt
	require.NoError(t, m.MarkTaken(r, due))
	require.NoError(t, m.ResetToPending(r))
	require.NoError(t, m.MarkSkipped(r))
	assert.True(t, r.ScheduledAt.Equal(orig))
	assert.Equal(t, "America/New_York", r.Zone)
}

func TestExpire(t *testing.T) {
	m, _ := newManager(due.Add(time.Minute))
	old, _ := m.Materialize("a", due.Add(-48*time.Hour), "America/New_York")
	stillPending, _ := m.Materialize("b", due.Add(-48*time.Hour), "America/New_York")
	recent, _ := m.Materialize("c", due, "America/New_York")
	require.NoError(t, m.MarkTaken(old, due.Add(-48*time.Hour)))
	require.NoError(t, m.MarkTaken(recent, due))

	removed := m.Expire(due.Add(-24 * time.Hour))
	assert.Equal(t, 1, removed)

	var remaining []*dose.Record
	for r := range m.Records() {
		remaining = append(remaining, r)
	}
	require.Len(t, remaining, 2)
	assert.Contains(t, remaining, stillPending, "pending records survive retention")
	assert.Contains(t, remaining, recent)

	// The expired occurrence can be re-materialized.
	_, created := m.Materialize("a", due.Add(-48*time.Hour), "America/New_York")
	assert.True(t, created)
}
