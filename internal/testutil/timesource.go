// Copyright 2025 The medtrack authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package testutil provides fakes shared by the engine's tests.
package testutil

import (
	"sync"
	"time"
)

// FixedTimeSource reports a settable instant as the current time. It
// satisfies the TimeSource interfaces of the dose and transition
// packages.
type FixedTimeSource struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedTimeSource(t time.Time) *FixedTimeSource {
	return &FixedTimeSource{t: t}
}

func (f *FixedTimeSource) NowIn(loc *time.Location) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t.In(loc)
}

// Set moves the fake clock to the given instant.
func (f *FixedTimeSource) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t
}

// Advance moves the fake clock forward by d.
func (f *FixedTimeSource) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}
