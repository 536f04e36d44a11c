// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package dose

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"cloudeng.io/algo/container/list"
	"github.com/google/uuid"
	"github.com/medtrack/medtrack/internal/logging"
)

// ErrInvalidTransition is returned for illegal record status changes,
// including marking a dose taken at an implausible instant.
var ErrInvalidTransition = errors.New("invalid transition")

// TimeSource provides the current time and is intended primarily for
// testing purposes.
type TimeSource interface {
	NowIn(loc *time.Location) time.Time
}

// SystemTimeSource is the default TimeSource, backed by time.Now.
type SystemTimeSource struct{}

func (SystemTimeSource) NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

type Option func(o *options)

type options struct {
	timeSource     TimeSource
	logger         *slog.Logger
	maxForwardSkew time.Duration
	maxLookBack    time.Duration
}

// WithTimeSource sets the time source used for transition validation and
// is primarily intended for testing purposes.
func WithTimeSource(ts TimeSource) Option {
	return func(o *options) {
		o.timeSource = ts
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxForwardSkew bounds how far ahead of the current time a taken
// instant may be. The default is five minutes.
func WithMaxForwardSkew(d time.Duration) Option {
	return func(o *options) {
		o.maxForwardSkew = d
	}
}

// WithMaxLookBack bounds how far before its scheduled instant a dose may
// be recorded as taken. The default is twenty four hours.
func WithMaxLookBack(d time.Duration) Option {
	return func(o *options) {
		o.maxLookBack = d
	}
}

type key struct {
	schedule string
	at       int64
}

// Manager owns the set of dose records. Records are created by
// Materialize and thereafter only their status and taken-at fields change,
// via the transition methods; identity fields are never rewritten.
type Manager struct {
	options
	mu      sync.Mutex
	byKey   map[key]*Record
	all     []*Record
	pending *list.Double[*Record]
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		byKey:   map[key]*Record{},
		all:     make([]*Record, 0, 1000),
		pending: list.NewDouble[*Record](),
	}
	for _, opt := range opts {
		opt(&m.options)
	}
	if m.timeSource == nil {
		m.timeSource = SystemTimeSource{}
	}
	if m.logger == nil {
		m.logger = logging.Discard()
	}
	m.logger = m.logger.With("mod", "dose")
	return m
}

// Materialize creates a pending record for the given schedule occurrence,
// stamping it with the UTC instant the dose is due and the zone in effect
// at creation. Materializing the same (schedule, instant) pair again
// returns the existing record; the second return value reports whether a
// new record was created.
func (m *Manager) Materialize(schedule string, at time.Time, zone string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{schedule: schedule, at: at.UnixNano()}
	if r, ok := m.byKey[k]; ok {
		return r, false
	}
	r := &Record{
		ID:          uuid.New(),
		Schedule:    schedule,
		ScheduledAt: at.UTC(),
		Zone:        zone,
	}
	r.listID = m.pending.Append(r)
	m.byKey[k] = r
	m.all = append(m.all, r)
	m.logger.Info("materialized", "schedule", schedule, "due", r.ScheduledAt, "zone", zone)
	return r, true
}

// MarkTaken transitions a pending record to taken and sets its taken-at
// instant. The instant may not be more than the forward-skew tolerance
// ahead of the current time, nor precede the scheduled instant by more
// than the look-back window.
func (m *Manager) MarkTaken(r *Record, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.status != Pending {
		return fmt.Errorf("%w: %v -> taken", ErrInvalidTransition, r.status)
	}
	skew := m.maxForwardSkew
	if skew == 0 {
		skew = 5 * time.Minute
	}
	lookBack := m.maxLookBack
	if lookBack == 0 {
		lookBack = 24 * time.Hour
	}
	now := m.timeSource.NowIn(time.UTC)
	if at.After(now.Add(skew)) {
		return fmt.Errorf("%w: taken at %v is more than %v ahead of now (%v)", ErrInvalidTransition, at, skew, now)
	}
	if r.ScheduledAt.Sub(at) > lookBack {
		return fmt.Errorf("%w: taken at %v precedes scheduled %v by more than %v", ErrInvalidTransition, at, r.ScheduledAt, lookBack)
	}
	r.status = Taken
	r.takenAt = at.UTC()
	m.pending.RemoveItem(r.listID)
	m.logger.Info("taken", "schedule", r.Schedule, "due", r.ScheduledAt, "at", r.takenAt)
	return nil
}

// MarkMissed transitions a pending record to missed.
func (m *Manager) MarkMissed(r *Record) error {
	return m.finalize(r, Missed)
}

// MarkSkipped transitions a pending record to skipped.
func (m *Manager) MarkSkipped(r *Record) error {
	return m.finalize(r, Skipped)
}

func (m *Manager) finalize(r *Record, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.status != Pending {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, r.status, to)
	}
	r.status = to
	m.pending.RemoveItem(r.listID)
	m.logger.Info(to.String(), "schedule", r.Schedule, "due", r.ScheduledAt)
	return nil
}

// ResetToPending returns a taken, missed or skipped record to pending,
// clearing any taken-at instant. It is the only way out of a terminal
// state, so a recorded taken-at can never be silently overwritten.
func (m *Manager) ResetToPending(r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.status == Pending {
		return fmt.Errorf("%w: already pending", ErrInvalidTransition)
	}
	r.status = Pending
	r.takenAt = time.Time{}
	r.listID = m.pending.Append(r)
	m.logger.Info("reset", "schedule", r.Schedule, "due", r.ScheduledAt)
	return nil
}

// Records returns every record, in creation order.
func (m *Manager) Records() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, r := range m.all {
			if !yield(r) {
				return
			}
		}
	}
}

// Pending returns the records still awaiting a taken, missed or skipped
// transition, in materialization order.
func (m *Manager) Pending() iter.Seq[*Record] {
	return func(yield func(*Record) bool) {
		m.mu.Lock()
		defer m.mu.Unlock()
		for r := range m.pending.Forward() {
			if !yield(r) {
				return
			}
		}
	}
}

// Expire removes records whose scheduled instant is before the cutoff.
// This is the only way records are ever destroyed; it exists for bulk
// retention cleanup and leaves pending records alone.
func (m *Manager) Expire(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.all[:0]
	removed := 0
	for _, r := range m.all {
		if r.status != Pending && r.ScheduledAt.Before(cutoff) {
			delete(m.byKey, key{schedule: r.Schedule, at: r.ScheduledAt.UnixNano()})
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.all = kept
	if removed > 0 {
		m.logger.Info("expired", "#records", removed, "cutoff", cutoff)
	}
	return removed
}
