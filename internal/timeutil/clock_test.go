package timeutil

import (
	"testing"
	"time"
)

var epoch = time.Date(2021, 1, 1, 12, 0, 0, 0, time.UTC)

func TestRealClock(t *testing.T) {
	var clock Clock = RealClock{}

	before := time.Now()
	now := clock.Now()
	if now.Before(before) {
		t.Errorf("Now() = %v, before %v", now, before)
	}
	if d := clock.Since(now.Add(-time.Second)); d < time.Second {
		t.Errorf("Since() = %v, want >= 1s", d)
	}

	ticker := clock.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("ticker did not fire")
	}
}

func TestFakeClock_Step(t *testing.T) {
	clock := NewFakeClock(epoch, time.Second)

	started := clock.Now()
	if !started.Equal(epoch) {
		t.Errorf("first Now() = %v, want %v", started, epoch)
	}
	for i := 0; i < 2; i++ {
		if d := clock.Since(started); d != time.Second {
			t.Errorf("Since() call %d = %v, want 1s", i, d)
		}
	}
	if got := clock.Now(); !got.Equal(epoch.Add(time.Second)) {
		t.Errorf("second Now() = %v", got)
	}
}

func TestFakeClock_NoStep(t *testing.T) {
	clock := NewFakeClock(epoch, 0)

	if a, b := clock.Now(), clock.Now(); !a.Equal(b) {
		t.Errorf("Now() moved without Step: %v then %v", a, b)
	}
	clock.Advance(90 * time.Second)
	if d := clock.Since(epoch); d != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", d)
	}
}

func ticked(tk Ticker) (time.Time, bool) {
	select {
	case now := <-tk.C():
		return now, true
	default:
		return time.Time{}, false
	}
}

func TestFakeClock_Ticker(t *testing.T) {
	clock := NewFakeClock(epoch, 0)
	ticker := clock.NewTicker(time.Minute)

	clock.Advance(30 * time.Second)
	if _, ok := ticked(ticker); ok {
		t.Fatal("ticker fired early")
	}

	clock.Advance(30 * time.Second)
	got, ok := ticked(ticker)
	if !ok {
		t.Fatal("ticker did not fire")
	}
	if !got.Equal(epoch.Add(time.Minute)) {
		t.Errorf("tick = %v, want %v", got, epoch.Add(time.Minute))
	}

	// Skipping several intervals delivers one tick and reschedules past now.
	clock.Advance(5 * time.Minute)
	if _, ok := ticked(ticker); !ok {
		t.Fatal("ticker did not fire after a long advance")
	}
	clock.Advance(30 * time.Second)
	if _, ok := ticked(ticker); ok {
		t.Fatal("ticker fired before its next interval")
	}
}

func TestFakeClock_TickerStop(t *testing.T) {
	clock := NewFakeClock(epoch, 0)
	ticker := clock.NewTicker(time.Second)
	ticker.Stop()

	clock.Advance(time.Minute)
	if _, ok := ticked(ticker); ok {
		t.Fatal("stopped ticker fired")
	}
}

func TestFakeClock_NewTickerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewTicker(0) did not panic")
		}
	}()
	NewFakeClock(epoch, 0).NewTicker(0)
}
