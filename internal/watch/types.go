package watch

import (
	"time"

	"github.com/fsnotify/fsnotify"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
)

// Options controls watcher behavior.
type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
	Debounce time.Duration

	// OnOverflow is the fail-safe dirty signal: invoked when events may
	// have been dropped (kernel queue overflow, watcher restart) so the
	// aggregator restarts rather than silently missing changes.
	OnOverflow func(reason string)

	// ErrorHandler is invoked when the watcher cannot recover; the
	// filesystem source is then lost and the caller decides how to stop.
	ErrorHandler func(error)
}

// Metrics reports watcher counters.
type Metrics struct {
	ActiveWatches   int
	EventsDelivered uint64
	EventsCoalesced uint64
	Errors          uint64
	RestartAttempts int
}

// normalizeOp maps an fsnotify operation onto the normalized change kind.
// Chmod carries no content change and is dropped.
func normalizeOp(op fsnotify.Op) (aggregate.EventType, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return aggregate.TypeCreated, true
	case op.Has(fsnotify.Write):
		return aggregate.TypeModified, true
	case op.Has(fsnotify.Remove):
		return aggregate.TypeDeleted, true
	case op.Has(fsnotify.Rename):
		return aggregate.TypeMoved, true
	default:
		return "", false
	}
}
