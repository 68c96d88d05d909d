package dither

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestZeroMaxRunsSynchronously(t *testing.T) {
	scheduler := NewScheduler(0)

	ran := false
	scheduler.Schedule(func() {
		ran = true
	})
	if !ran {
		t.Fatal("expected action to run on the calling goroutine when max is zero")
	}
}

func TestScheduledActionFiresWithinBound(t *testing.T) {
	scheduler := NewScheduler(50 * time.Millisecond)

	done := make(chan time.Time, 1)
	start := time.Now()
	scheduler.Schedule(func() {
		done <- time.Now()
	})

	select {
	case fired := <-done:
		if elapsed := fired.Sub(start); elapsed > 500*time.Millisecond {
			t.Fatalf("action fired after %v, expected within bound", elapsed)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for scheduled action")
	}
}

func TestMultiplePendingActionsAllFire(t *testing.T) {
	scheduler := NewScheduler(20 * time.Millisecond)

	const count = 20
	var fired atomic.Int64
	var wg sync.WaitGroup
	wg.Add(count)
	for i := 0; i < count; i++ {
		scheduler.Schedule(func() {
			fired.Add(1)
			wg.Done()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out: only %d of %d actions fired", fired.Load(), count)
	}
}

func TestDelayDistributionIsBoundedAndRoughlyUniform(t *testing.T) {
	max := 5 * time.Second
	scheduler := NewScheduler(max)

	const samples = 1000
	var total time.Duration
	for i := 0; i < samples; i++ {
		delay := scheduler.rand(max)
		if delay < 0 || delay >= max {
			t.Fatalf("delay %v outside [0, %v)", delay, max)
		}
		total += delay
	}

	mean := total / samples
	if mean < max/4 || mean > 3*max/4 {
		t.Fatalf("mean delay %v too far from %v for a uniform draw", mean, max/2)
	}
}

func TestSchedulerUsesInjectedRand(t *testing.T) {
	called := false
	scheduler := NewSchedulerWithRand(time.Second, func(limit time.Duration) time.Duration {
		called = true
		return 0
	})

	done := make(chan struct{})
	scheduler.Schedule(func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for action with injected rand")
	}
	if !called {
		t.Fatal("expected injected rand to be used")
	}
}
