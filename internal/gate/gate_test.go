package gate

import (
	"errors"
	"sync"
	"testing"
	"time"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/dither"
	"fseventwatcher/internal/metrics"
	"fseventwatcher/internal/restart"
)

type fakeRestarter struct {
	mu       sync.Mutex
	calls    int
	err      error
	released chan struct{}
}

func (restarter *fakeRestarter) Restart(target restart.Target) error {
	restarter.mu.Lock()
	restarter.calls++
	restarter.mu.Unlock()
	if restarter.released != nil {
		<-restarter.released
	}
	return restarter.err
}

func (restarter *fakeRestarter) callCount() int {
	restarter.mu.Lock()
	defer restarter.mu.Unlock()
	return restarter.calls
}

func newTestGate(restarter Restarter) (*Gate, *aggregate.Aggregator) {
	aggregator := aggregate.New([]aggregate.WatchSpec{
		{Path: "/data", Recursive: true, Events: aggregate.AllTypes()},
	}, aggregate.Options{Registry: &metrics.Registry{}})

	gate := New(aggregator, dither.NewScheduler(0), restarter, restart.AnyRunning(), Options{
		Registry: &metrics.Registry{},
	})
	return gate, aggregator
}

func TestDirtyTickTriggersExactlyOneRestart(t *testing.T) {
	restarter := &fakeRestarter{}
	gate, aggregator := newTestGate(restarter)

	aggregator.Observe(aggregate.ChangeEvent{Path: "/data/x", Type: aggregate.TypeModified})
	gate.OnHeartbeat()

	if got := restarter.callCount(); got != 1 {
		t.Fatalf("expected 1 restart, got %d", got)
	}

	// No intervening change: the next tick must be quiet.
	gate.OnHeartbeat()
	if got := restarter.callCount(); got != 1 {
		t.Fatalf("expected no restart on clean tick, got %d", got)
	}
}

func TestBurstOfChangesCollapsesToOneRestart(t *testing.T) {
	restarter := &fakeRestarter{}
	gate, aggregator := newTestGate(restarter)

	for i := 0; i < 100; i++ {
		aggregator.Observe(aggregate.ChangeEvent{Path: "/data/x", Type: aggregate.TypeCreated})
	}
	gate.OnHeartbeat()

	if got := restarter.callCount(); got != 1 {
		t.Fatalf("expected burst to collapse into 1 restart, got %d", got)
	}
}

func TestCleanTickDoesNotRestart(t *testing.T) {
	restarter := &fakeRestarter{}
	gate, _ := newTestGate(restarter)

	gate.OnHeartbeat()
	if got := restarter.callCount(); got != 0 {
		t.Fatalf("expected no restart without changes, got %d", got)
	}
}

func TestRestartErrorRemarksDirty(t *testing.T) {
	restarter := &fakeRestarter{err: errors.New("connection refused")}
	gate, aggregator := newTestGate(restarter)

	aggregator.Observe(aggregate.ChangeEvent{Path: "/data/x", Type: aggregate.TypeModified})
	gate.OnHeartbeat()

	// The failed enumeration must not swallow the pending change: the next
	// tick retries.
	gate.OnHeartbeat()
	if got := restarter.callCount(); got != 2 {
		t.Fatalf("expected retry on next tick after list failure, got %d calls", got)
	}
}

func TestDitheredRestartDoesNotBlockHeartbeats(t *testing.T) {
	released := make(chan struct{})
	restarter := &fakeRestarter{released: released}

	aggregator := aggregate.New([]aggregate.WatchSpec{
		{Path: "/data", Recursive: true, Events: aggregate.AllTypes()},
	}, aggregate.Options{Registry: &metrics.Registry{}})

	scheduler := dither.NewSchedulerWithRand(time.Second, func(time.Duration) time.Duration {
		return 0
	})
	gate := New(aggregator, scheduler, restarter, restart.AnyRunning(), Options{
		Registry: &metrics.Registry{},
	})

	aggregator.Observe(aggregate.ChangeEvent{Path: "/data/x", Type: aggregate.TypeModified})
	gate.OnHeartbeat()

	// The restarter is still blocked; heartbeat processing must continue.
	done := make(chan struct{})
	go func() {
		gate.OnHeartbeat()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("heartbeat blocked behind an in-flight restart")
	}

	if state := gate.State(); state != StateRestarting {
		t.Fatalf("expected restarting state while restart is in flight, got %v", state)
	}
	close(released)

	deadline := time.After(2 * time.Second)
	for gate.State() != StateIdle {
		select {
		case <-deadline:
			t.Fatal("gate never returned to idle")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
}
