// Package aggregate reconciles asynchronous filesystem change notifications
// into a single dirty-since-last-tick flag.
//
// The heartbeat consumer and the filesystem producer call in concurrently;
// the mutex around the flag guarantees an event lands in exactly one tick
// window, never both and never neither.
package aggregate

import (
	"sync"

	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
)

type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Aggregator owns the dirty flag. Once set, the flag stays set until the
// next ConsumeAndReset.
type Aggregator struct {
	specs    []WatchSpec
	logger   *logging.Logger
	registry *metrics.Registry

	mu    sync.Mutex
	dirty bool
}

func New(specs []WatchSpec, options Options) *Aggregator {
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Aggregator{
		specs:    specs,
		logger:   options.Logger,
		registry: registry,
	}
}

// Observe records the event if it matches a configured watch spec.
// Out-of-scope events are ignored. Never blocks on anything but the flag
// mutex; safe to call concurrently with ConsumeAndReset.
func (aggregator *Aggregator) Observe(event ChangeEvent) {
	if aggregator == nil {
		return
	}
	aggregator.registry.IncEventObserved()

	matched := false
	for _, spec := range aggregator.specs {
		if spec.Matches(event) {
			matched = true
			break
		}
	}
	if !matched {
		aggregator.registry.IncEventIgnored()
		return
	}
	aggregator.registry.IncEventMatched()

	aggregator.mu.Lock()
	aggregator.dirty = true
	aggregator.mu.Unlock()

	if aggregator.logger != nil {
		aggregator.logger.Debug("change observed", map[string]string{
			"path": event.Path,
			"type": string(event.Type),
		})
	}
}

// ConsumeAndReset atomically reads and clears the dirty flag. Returns true
// if any matching event or overflow was recorded since the previous reset.
func (aggregator *Aggregator) ConsumeAndReset() bool {
	if aggregator == nil {
		return false
	}
	aggregator.mu.Lock()
	dirty := aggregator.dirty
	aggregator.dirty = false
	aggregator.mu.Unlock()
	return dirty
}

// MarkDirty sets the flag without an event. Used when the filesystem source
// reports overflow, and to re-mark after a failed process-info query, so
// changes are never silently missed.
func (aggregator *Aggregator) MarkDirty(reason string) {
	if aggregator == nil {
		return
	}
	aggregator.mu.Lock()
	aggregator.dirty = true
	aggregator.mu.Unlock()

	if aggregator.logger != nil {
		aggregator.logger.Warn("marked dirty without event", map[string]string{
			"reason": reason,
		})
	}
}

// Specs returns the configured watch specs.
func (aggregator *Aggregator) Specs() []WatchSpec {
	if aggregator == nil {
		return nil
	}
	return aggregator.specs
}
