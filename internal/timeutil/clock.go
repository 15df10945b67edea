// Package timeutil provides the clock used to time batch runs and pace
// their progress reports.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the subset of the time package the batch driver needs.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// NewTicker wraps time.NewTicker.
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// FakeClock is a manually driven Clock for tests. Each call to Now moves
// the clock forward by Step after reading it, so a run timed with
// Now/Since reports a fixed, non-zero elapsed time.
type FakeClock struct {
	Step time.Duration

	mu      sync.Mutex
	now     time.Time
	tickers []*FakeTicker
}

// NewFakeClock returns a FakeClock reading start.
func NewFakeClock(start time.Time, step time.Duration) *FakeClock {
	return &FakeClock{now: start, Step: step}
}

// Now returns the current fake time, then applies Step.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	now := c.now
	c.mu.Unlock()
	if c.Step > 0 {
		c.Advance(c.Step)
	}
	return now
}

// Since measures against the current fake time without stepping.
func (c *FakeClock) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.Sub(t)
}

// Advance moves the clock forward by d and fires every ticker that has
// come due. A ticker fires at most once per Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	tickers := append([]*FakeTicker(nil), c.tickers...)
	c.mu.Unlock()

	for _, t := range tickers {
		t.fire(now)
	}
}

// NewTicker registers a ticker that fires when the clock is advanced past
// each multiple of d.
func (c *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &FakeTicker{ch: make(chan time.Time, 1), every: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

// FakeTicker is the Ticker returned by FakeClock. Like time.Ticker it
// drops ticks for a slow receiver.
type FakeTicker struct {
	ch    chan time.Time
	every time.Duration

	mu      sync.Mutex
	next    time.Time
	stopped bool
}

func (t *FakeTicker) C() <-chan time.Time { return t.ch }

func (t *FakeTicker) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

func (t *FakeTicker) fire(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || now.Before(t.next) {
		return
	}
	for !now.Before(t.next) {
		t.next = t.next.Add(t.every)
	}
	select {
	case t.ch <- now:
	default:
	}
}
