package metrics

import (
	"strings"
	"testing"
)

func TestWritePrometheusIncludesCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncTick()
	registry.IncTick()
	registry.IncDirtyTick()
	registry.IncRestartIssued()
	registry.SetActiveWatches(3)
	registry.IncBusPublished("fs_events")
	registry.IncBusDropped("fs_events")

	output := &strings.Builder{}
	if err := registry.WritePrometheus(output); err != nil {
		t.Fatalf("write prometheus: %v", err)
	}
	text := output.String()

	for _, line := range []string{
		"fseventwatcher_ticks_total 2",
		"fseventwatcher_dirty_ticks_total 1",
		"fseventwatcher_restarts_issued_total 1",
		"fseventwatcher_active_watches 3",
		`fseventwatcher_bus_published_total{bus="fs_events"} 1`,
		`fseventwatcher_bus_dropped_total{bus="fs_events"} 1`,
	} {
		if !strings.Contains(text, line) {
			t.Fatalf("missing %q in output:\n%s", line, text)
		}
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.IncTick()
	registry.IncOverflow()
	if err := registry.WritePrometheus(&strings.Builder{}); err != nil {
		t.Fatalf("write prometheus on nil registry: %v", err)
	}
}
