// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package transition reacts to reported time zone changes. It owns the
// cache of future dose triggers, which is pure derived data: on every
// zone change the cache is discarded and recomputed in the new zone as a
// single atomic replacement. Existing dose records are never touched;
// their scheduled instants are committed UTC facts.
package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloudeng.io/sync/errgroup"
	"github.com/medtrack/medtrack/civil"
	"github.com/medtrack/medtrack/internal/logging"
	"github.com/medtrack/medtrack/schedule"
)

// ErrInvalidEvent is returned for transition events that do not describe
// an actual zone change.
var ErrInvalidEvent = errors.New("invalid transition event")

// Event is an observed zone change reported by the host environment.
// Previous and New must differ.
type Event struct {
	Previous string
	New      string
	At       time.Time
}

func (e Event) Validate() error {
	if e.Previous == e.New {
		return fmt.Errorf("%w: zones are identical: %v", ErrInvalidEvent, e.New)
	}
	if e.New == "" {
		return fmt.Errorf("%w: empty new zone", ErrInvalidEvent)
	}
	return nil
}

// Advice is informational output of a transition, for the delivery layer
// to optionally surface to the user. It is never blocking.
type Advice struct {
	// LargeOffsetChange is set when the offset difference between the
	// old and new zones exceeds twelve hours, as on a date-line
	// crossing.
	LargeOffsetChange bool
	OffsetChange      time.Duration
}

const largeOffsetThreshold = 12 * time.Hour

// Trigger is a cached future occurrence of one schedule. Triggers are
// ephemeral: they are recomputed wholesale on zone changes and schedule
// edits, and are never a source of truth.
type Trigger struct {
	Schedule string
	When     time.Time
}

// TimeSource provides the current time in a specific location and is
// intended primarily for testing purposes.
type TimeSource interface {
	NowIn(loc *time.Location) time.Time
}

type SystemTimeSource struct{}

func (SystemTimeSource) NowIn(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

type Option func(o *options)

type options struct {
	timeSource TimeSource
	logger     *slog.Logger
}

// WithTimeSource sets the time source used when recomputing triggers and
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

// Coordinator maintains the invariant that the trigger cache always
// reflects the current zone. All cache updates happen as one full
// replacement under a single writer; a failed recomputation leaves the
// cache untouched rather than applying a partial mix of zones.
type Coordinator struct {
	options
	// writeMu serializes writers across the whole recompute-and-swap
	// sequence so that the zone cannot change between computing a
	// trigger set and installing it.
	writeMu   sync.Mutex
	mu        sync.Mutex
	schedules []schedule.Schedule
	zone      string
	loc       *time.Location
	triggers  map[string]time.Time
}

// NewCoordinator creates a coordinator for the supplied schedules with
// the given initial zone. The trigger cache starts empty; call Refresh to
// seed it.
func NewCoordinator(schedules []schedule.Schedule, zone string, opts ...Option) (*Coordinator, error) {
	loc, err := civil.LoadZone(zone)
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		schedules: schedules,
		zone:      zone,
		loc:       loc,
		triggers:  map[string]time.Time{},
	}
	for _, opt := range opts {
		opt(&c.options)
	}
	if c.timeSource == nil {
		c.timeSource = SystemTimeSource{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	c.logger = c.logger.With("mod", "transition")
	return c, nil
}

// HandleTransition applies a zone change: it validates the event,
// recomputes every enabled schedule's next trigger in the new zone and
// swaps the cache in one step. Dose records are not consulted or
// modified. The returned Advice flags offset changes larger than twelve
// hours so the delivery layer can warn the user.
func (c *Coordinator) HandleTransition(ctx context.Context, ev Event) (Advice, error) {
	if err := ev.Validate(); err != nil {
		return Advice{}, err
	}
	newLoc, err := civil.LoadZone(ev.New)
	if err != nil {
		return Advice{}, err
	}
	prevLoc, err := civil.LoadZone(ev.Previous)
	if err != nil {
		return Advice{}, err
	}
	at := ev.At
	if at.IsZero() {
		at = c.timeSource.NowIn(newLoc)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	now := c.timeSource.NowIn(newLoc)
	triggers, err := c.compute(ctx, newLoc, now)
	if err != nil {
		return Advice{}, err
	}
	c.mu.Lock()
	c.zone = ev.New
	c.loc = newLoc
	c.triggers = triggers
	c.mu.Unlock()

	delta := civil.OffsetChange(prevLoc, newLoc, at)
	advice := Advice{OffsetChange: delta}
	if delta < 0 {
		delta = -delta
	}
	advice.LargeOffsetChange = delta > largeOffsetThreshold
	logger := c.log(ctx)
	logger.Info("zone change", "from", ev.Previous, "to", ev.New, "at", at, "offset-change", advice.OffsetChange.String(), "#triggers", len(triggers))
	if advice.LargeOffsetChange {
		logger.Warn("large offset change", "from", ev.Previous, "to", ev.New, "offset-change", advice.OffsetChange.String())
	}
	return advice, nil
}

// Refresh recomputes the trigger cache in the current zone. It is called
// after schedule edits and to seed a new coordinator.
func (c *Coordinator) Refresh(ctx context.Context) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.refresh(ctx)
}

// Update replaces the schedule set and recomputes the cache.
func (c *Coordinator) Update(ctx context.Context, schedules []schedule.Schedule) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	c.schedules = schedules
	c.mu.Unlock()
	return c.refresh(ctx)
}

// refresh recomputes and swaps the cache. Callers hold writeMu, so the
// location read here is still current when the swap happens.
func (c *Coordinator) refresh(ctx context.Context) error {
	c.mu.Lock()
	loc := c.loc
	zone := c.zone
	c.mu.Unlock()
	now := c.timeSource.NowIn(loc)
	triggers, err := c.compute(ctx, loc, now)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.triggers = triggers
	c.mu.Unlock()
	c.log(ctx).Info("triggers refreshed", "zone", zone, "#triggers", len(triggers))
	return nil
}

// log prefers a logger carried by the context, as supplied by the
// delivery layer, over the coordinator's own.
func (c *Coordinator) log(ctx context.Context) *slog.Logger {
	if l := logging.LoggerFromContext(ctx); l != logging.Discard() {
		return l.With("mod", "transition")
	}
	return c.logger
}

// compute derives a fresh trigger set; the cache is only replaced if
// every schedule resolves.
func (c *Coordinator) compute(ctx context.Context, loc *time.Location, now time.Time) (map[string]time.Time, error) {
	c.mu.Lock()
	schedules := c.schedules
	c.mu.Unlock()
	type result struct {
		when time.Time
		ok   bool
	}
	results := make([]result, len(schedules))
	var g errgroup.T
	for i, s := range schedules {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			when, ok, err := s.NextOccurrence(loc, now)
			if err != nil {
				return err
			}
			results[i] = result{when: when, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	triggers := make(map[string]time.Time, len(schedules))
	for i, s := range schedules {
		if results[i].ok {
			triggers[s.Name] = results[i].when
		}
	}
	return triggers, nil
}

// Zone returns the zone the cache currently reflects.
func (c *Coordinator) Zone() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zone
}

// Location returns the time.Location for the current zone.
func (c *Coordinator) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc
}

// NextTrigger returns the cached next occurrence of the named schedule.
func (c *Coordinator) NextTrigger(name string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	when, ok := c.triggers[name]
	return when, ok
}

// Triggers returns the cached triggers ordered by time.
func (c *Coordinator) Triggers() []Trigger {
	c.mu.Lock()
	defer c.mu.Unlock()
	triggers := make([]Trigger, 0, len(c.triggers))
	for name, when := range c.triggers {
		triggers = append(triggers, Trigger{Schedule: name, When: when})
	}
	sort.Slice(triggers, func(i, j int) bool {
		return triggers[i].When.Before(triggers[j].When)
	})
	return triggers
}
