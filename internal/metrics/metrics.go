// Package metrics collects counters for the watcher and exposes them in
// Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type Registry struct {
	ticks           atomic.Int64
	dirtyTicks      atomic.Int64
	restartsIssued  atomic.Int64
	restartFailures atomic.Int64
	restartsSkipped atomic.Int64
	eventsObserved  atomic.Int64
	eventsMatched   atomic.Int64
	eventsIgnored   atomic.Int64
	eventsCoalesced atomic.Int64
	overflowSignals atomic.Int64
	activeWatches   atomic.Int64
	buses           sync.Map
}

type busStats struct {
	published atomic.Int64
	dropped   atomic.Int64
}

var Default = &Registry{}

func (r *Registry) IncTick() {
	if r == nil {
		return
	}
	r.ticks.Add(1)
}

func (r *Registry) IncDirtyTick() {
	if r == nil {
		return
	}
	r.dirtyTicks.Add(1)
}

func (r *Registry) IncRestartIssued() {
	if r == nil {
		return
	}
	r.restartsIssued.Add(1)
}

func (r *Registry) IncRestartFailure() {
	if r == nil {
		return
	}
	r.restartFailures.Add(1)
}

func (r *Registry) IncRestartSkipped() {
	if r == nil {
		return
	}
	r.restartsSkipped.Add(1)
}

func (r *Registry) IncEventObserved() {
	if r == nil {
		return
	}
	r.eventsObserved.Add(1)
}

func (r *Registry) IncEventMatched() {
	if r == nil {
		return
	}
	r.eventsMatched.Add(1)
}

func (r *Registry) IncEventIgnored() {
	if r == nil {
		return
	}
	r.eventsIgnored.Add(1)
}

func (r *Registry) IncEventCoalesced() {
	if r == nil {
		return
	}
	r.eventsCoalesced.Add(1)
}

func (r *Registry) IncOverflow() {
	if r == nil {
		return
	}
	r.overflowSignals.Add(1)
}

func (r *Registry) SetActiveWatches(count int) {
	if r == nil {
		return
	}
	r.activeWatches.Store(int64(count))
}

func (r *Registry) IncBusPublished(bus string) {
	if r == nil {
		return
	}
	r.busStats(bus).published.Add(1)
}

func (r *Registry) IncBusDropped(bus string) {
	if r == nil {
		return
	}
	r.busStats(bus).dropped.Add(1)
}

func (r *Registry) WritePrometheus(writer io.Writer) error {
	if r == nil {
		return nil
	}

	writeCounter(writer, "fseventwatcher_ticks_total", "Heartbeats received from supervisord", r.ticks.Load())
	writeCounter(writer, "fseventwatcher_dirty_ticks_total", "Heartbeats that found the dirty flag set", r.dirtyTicks.Load())
	writeCounter(writer, "fseventwatcher_restarts_issued_total", "Process restarts issued", r.restartsIssued.Load())
	writeCounter(writer, "fseventwatcher_restart_failures_total", "Process restart calls that failed", r.restartFailures.Load())
	writeCounter(writer, "fseventwatcher_restarts_skipped_total", "Targets skipped because they were not running", r.restartsSkipped.Load())
	writeCounter(writer, "fseventwatcher_fs_events_observed_total", "Filesystem events received from the watcher", r.eventsObserved.Load())
	writeCounter(writer, "fseventwatcher_fs_events_matched_total", "Filesystem events that matched a watch spec", r.eventsMatched.Load())
	writeCounter(writer, "fseventwatcher_fs_events_ignored_total", "Filesystem events outside the configured scope", r.eventsIgnored.Load())
	writeCounter(writer, "fseventwatcher_fs_events_coalesced_total", "Filesystem events coalesced by debouncing", r.eventsCoalesced.Load())
	writeCounter(writer, "fseventwatcher_overflow_signals_total", "Overflow signals treated as implicit dirty", r.overflowSignals.Load())

	writeHelp(writer, "fseventwatcher_active_watches", "Currently registered filesystem watches")
	fmt.Fprintln(writer, "# TYPE fseventwatcher_active_watches gauge")
	fmt.Fprintf(writer, "fseventwatcher_active_watches %d\n", r.activeWatches.Load())

	busNames := r.busNames()
	sort.Strings(busNames)
	if len(busNames) > 0 {
		writeHelp(writer, "fseventwatcher_bus_published_total", "Events published per bus")
		fmt.Fprintln(writer, "# TYPE fseventwatcher_bus_published_total counter")
		writeHelp(writer, "fseventwatcher_bus_dropped_total", "Events dropped per bus")
		fmt.Fprintln(writer, "# TYPE fseventwatcher_bus_dropped_total counter")
		for _, name := range busNames {
			stats := r.busStats(name)
			label := formatLabel(name)
			fmt.Fprintf(writer, "fseventwatcher_bus_published_total{bus=%s} %d\n", label, stats.published.Load())
			fmt.Fprintf(writer, "fseventwatcher_bus_dropped_total{bus=%s} %d\n", label, stats.dropped.Load())
		}
	}

	return nil
}

func (r *Registry) busStats(name string) *busStats {
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	value, _ := r.buses.LoadOrStore(name, &busStats{})
	return value.(*busStats)
}

func (r *Registry) busNames() []string {
	if r == nil {
		return nil
	}
	var names []string
	r.buses.Range(func(key, value interface{}) bool {
		if name, ok := key.(string); ok {
			names = append(names, name)
		}
		return true
	})
	return names
}

func writeCounter(writer io.Writer, name, help string, value int64) {
	writeHelp(writer, name, help)
	fmt.Fprintf(writer, "# TYPE %s counter\n", name)
	fmt.Fprintf(writer, "%s %d\n", name, value)
}

func writeHelp(writer io.Writer, name, help string) {
	fmt.Fprintf(writer, "# HELP %s %s\n", name, help)
}

func formatLabel(value string) string {
	return fmt.Sprintf("%q", value)
}
