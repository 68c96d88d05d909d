package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/dither"
	"fseventwatcher/internal/event"
	"fseventwatcher/internal/gate"
	"fseventwatcher/internal/metrics"
	"fseventwatcher/internal/restart"
	"fseventwatcher/internal/watch"
)

type recordingClient struct {
	mu        sync.Mutex
	restarted []string
}

func (client *recordingClient) ListProcesses() ([]restart.ProcessInfo, error) {
	return []restart.ProcessInfo{
		{Name: "web", Group: "web", State: restart.StateRunning, StateName: "RUNNING"},
	}, nil
}

func (client *recordingClient) StopProcess(namespec string) error {
	return nil
}

func (client *recordingClient) StartProcess(namespec string) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.restarted = append(client.restarted, namespec)
	return nil
}

func (client *recordingClient) restartCount() int {
	client.mu.Lock()
	defer client.mu.Unlock()
	return len(client.restarted)
}

// Full cycle through the real components: a change under the watched path
// makes the next tick restart, and a quiet tick after that does nothing.
func TestChangeThenTickRestartsOnce(t *testing.T) {
	dir := t.TempDir()
	registry := &metrics.Registry{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	specs := []aggregate.WatchSpec{
		{Path: dir, Recursive: true, Events: aggregate.AllTypes()},
	}
	aggregator := aggregate.New(specs, aggregate.Options{Registry: registry})

	bus := event.NewBus[aggregate.ChangeEvent](ctx, event.BusOptions{
		Name:     "fs_events",
		Registry: registry,
	})
	defer bus.Close()

	changes, cancelChanges := bus.Subscribe()
	defer cancelChanges()
	observed := make(chan struct{}, 16)
	go func() {
		for change := range changes {
			aggregator.Observe(change)
			observed <- struct{}{}
		}
	}()

	watcher, err := watch.New(bus, specs, watch.Options{
		Debounce:   10 * time.Millisecond,
		Registry:   registry,
		OnOverflow: aggregator.MarkDirty,
	})
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer watcher.Close()

	client := &recordingClient{}
	coordinator := restart.NewCoordinator(client, restart.Options{Registry: registry})
	heartbeatGate := gate.New(aggregator, dither.NewScheduler(0), coordinator, restart.AnyRunning(), gate.Options{
		Registry: registry,
	})

	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	select {
	case <-observed:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for the change to reach the aggregator")
	}

	heartbeatGate.OnHeartbeat()
	if got := client.restartCount(); got != 1 {
		t.Fatalf("expected 1 restart after dirty tick, got %d", got)
	}

	// Quiet tick: nothing changed since the restart.
	heartbeatGate.OnHeartbeat()
	if got := client.restartCount(); got != 1 {
		t.Fatalf("expected no restart on quiet tick, got %d", got)
	}
}
