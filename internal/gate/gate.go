// Package gate sequences heartbeat ticks into restart decisions.
//
// Heartbeats arrive strictly one at a time from the supervisor listener
// loop, so the gate itself needs no locking around its decision: the only
// concurrency it faces is change events racing the dirty-flag reset, which
// the aggregator resolves.
package gate

import (
	"sync/atomic"

	"fseventwatcher/internal/dither"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
	"fseventwatcher/internal/restart"
)

// State names the gate's position in the restart cycle. The DIRTY state of
// the wider system lives in the aggregator's flag; the gate only reports
// whether restarts are in flight.
type State string

const (
	StateIdle       State = "idle"
	StateRestarting State = "restarting"
)

// DirtySource is the aggregator surface the gate consumes.
type DirtySource interface {
	ConsumeAndReset() bool
	MarkDirty(reason string)
}

// Restarter issues restart commands for a resolved target.
type Restarter interface {
	Restart(target restart.Target) error
}

type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Gate holds no decision state of its own beyond in-flight restart
// accounting; it is a sequencing point between the tick stream and the
// aggregator.
type Gate struct {
	source    DirtySource
	scheduler *dither.Scheduler
	restarter Restarter
	target    restart.Target
	logger    *logging.Logger
	registry  *metrics.Registry
	inFlight  atomic.Int64
}

func New(source DirtySource, scheduler *dither.Scheduler, restarter Restarter, target restart.Target, options Options) *Gate {
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Gate{
		source:    source,
		scheduler: scheduler,
		restarter: restarter,
		target:    target,
		logger:    options.Logger,
		registry:  registry,
	}
}

// OnHeartbeat handles one tick. Must not be called concurrently with
// itself; the listener loop guarantees arrival-order processing. A dirty
// verdict hands the restart to the dither scheduler so slow control calls
// never block the next tick.
func (gate *Gate) OnHeartbeat() {
	if gate == nil {
		return
	}
	gate.registry.IncTick()

	if !gate.source.ConsumeAndReset() {
		return
	}
	gate.registry.IncDirtyTick()
	if gate.logger != nil {
		gate.logger.Info("changes since last tick, scheduling restart", nil)
	}

	gate.inFlight.Add(1)
	gate.scheduler.Schedule(gate.runRestart)
}

func (gate *Gate) runRestart() {
	defer gate.inFlight.Add(-1)

	if err := gate.restarter.Restart(gate.target); err != nil {
		if gate.logger != nil {
			gate.logger.Warn("restart skipped, keeping changes pending", map[string]string{
				"error": err.Error(),
			})
		}
		// The process list was unavailable; re-mark so the observed
		// changes trigger a retry on the next tick.
		gate.source.MarkDirty("process enumeration failed")
	}
}

// State reports idle unless at least one scheduled restart has not yet
// completed.
func (gate *Gate) State() State {
	if gate == nil || gate.inFlight.Load() == 0 {
		return StateIdle
	}
	return StateRestarting
}
