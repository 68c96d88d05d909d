// Package watch bridges fsnotify onto the normalized change-event stream
// consumed by the aggregator. It owns recursive watch registration,
// per-path debouncing, and recovery from watcher failures; anything it
// cannot recover is converted into a fail-safe dirty signal so a change is
// never silently missed.
package watch

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/event"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
)

const (
	defaultDebounce    = 100 * time.Millisecond
	maxRestartAttempts = 3
	restartBaseDelay   = 200 * time.Millisecond
)

// Watcher feeds normalized ChangeEvents from fsnotify into the bus.
type Watcher struct {
	bus      *event.Bus[aggregate.ChangeEvent]
	specs    []aggregate.WatchSpec
	logger   *logging.Logger
	registry *metrics.Registry

	mutex     sync.Mutex
	watcher   *fsnotify.Watcher
	watched   map[string]struct{}
	debouncer *debouncer
	closed    bool

	events chan fsnotify.Event
	errors chan error
	done   chan struct{}

	restartMutex    sync.Mutex
	restartTimer    *time.Timer
	restartAttempts int

	eventsDelivered uint64
	eventsCoalesced uint64
	errorCount      uint64

	onOverflow   func(string)
	errorHandler func(error)
}

// New starts watching every spec path. Recursive specs register the whole
// directory tree below the path.
func New(bus *event.Bus[aggregate.ChangeEvent], specs []aggregate.WatchSpec, options Options) (*Watcher, error) {
	if bus == nil {
		return nil, errors.New("event bus is required")
	}
	if len(specs) == 0 {
		return nil, errors.New("at least one watch spec is required")
	}

	source, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := options.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}

	watcher := &Watcher{
		bus:          bus,
		specs:        specs,
		logger:       options.Logger,
		registry:     registry,
		watcher:      source,
		watched:      make(map[string]struct{}),
		debouncer:    newDebouncer(debounce),
		events:       make(chan fsnotify.Event, 16),
		errors:       make(chan error, 4),
		done:         make(chan struct{}),
		onOverflow:   options.OnOverflow,
		errorHandler: options.ErrorHandler,
	}

	if err := watcher.addSpecWatches(); err != nil {
		_ = source.Close()
		return nil, err
	}

	watcher.startForwarder(source)
	go watcher.run()
	return watcher, nil
}

// Close shuts down the watcher and stops event processing.
func (watcher *Watcher) Close() error {
	if watcher == nil {
		return nil
	}

	watcher.mutex.Lock()
	if watcher.closed {
		watcher.mutex.Unlock()
		return nil
	}
	watcher.closed = true
	if watcher.debouncer != nil {
		watcher.debouncer.stop()
		watcher.debouncer = nil
	}
	source := watcher.watcher
	watcher.mutex.Unlock()

	watcher.restartMutex.Lock()
	if watcher.restartTimer != nil {
		watcher.restartTimer.Stop()
		watcher.restartTimer = nil
	}
	watcher.restartMutex.Unlock()

	close(watcher.done)
	if source == nil {
		return nil
	}
	return source.Close()
}

func (watcher *Watcher) run() {
	for {
		select {
		case fsEvent := <-watcher.events:
			watcher.handleEvent(fsEvent)
		case err := <-watcher.errors:
			watcher.handleError(err)
		case <-watcher.done:
			return
		}
	}
}

func (watcher *Watcher) startForwarder(source *fsnotify.Watcher) {
	if source == nil {
		return
	}

	go func() {
		for {
			select {
			case fsEvent, ok := <-source.Events:
				if !ok {
					return
				}
				select {
				case watcher.events <- fsEvent:
				case <-watcher.done:
					return
				}
			case err, ok := <-source.Errors:
				if !ok {
					return
				}
				select {
				case watcher.errors <- err:
				case <-watcher.done:
					return
				}
			case <-watcher.done:
				return
			}
		}
	}()
}

func (watcher *Watcher) handleEvent(fsEvent fsnotify.Event) {
	eventType, relevant := normalizeOp(fsEvent.Op)
	if !relevant {
		return
	}

	// A directory created under a recursive root extends the watch tree.
	if eventType == aggregate.TypeCreated {
		watcher.maybeExtendRecursiveWatch(fsEvent.Name)
	}

	entry := aggregate.ChangeEvent{
		Path:      fsEvent.Name,
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	matched := false
	for _, spec := range watcher.specs {
		if spec.Matches(entry) {
			matched = true
			break
		}
	}

	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	coalesced := watcher.debouncer.schedule(fsEvent.Name, entry, matched, watcher.flush)
	watcher.mutex.Unlock()

	if coalesced {
		atomic.AddUint64(&watcher.eventsCoalesced, 1)
		watcher.registry.IncEventCoalesced()
	}
}

func (watcher *Watcher) flush(path string) {
	watcher.mutex.Lock()
	if watcher.closed || watcher.debouncer == nil {
		watcher.mutex.Unlock()
		return
	}
	entry, ok := watcher.debouncer.pop(path)
	watcher.mutex.Unlock()
	if !ok {
		return
	}

	watcher.bus.Publish(entry)
	atomic.AddUint64(&watcher.eventsDelivered, 1)
}

func (watcher *Watcher) handleError(err error) {
	if err == nil {
		return
	}
	atomic.AddUint64(&watcher.errorCount, 1)
	watcher.logWarn("watcher error", map[string]string{
		"error": err.Error(),
	})

	if errors.Is(err, fsnotify.ErrEventOverflow) {
		watcher.registry.IncOverflow()
		watcher.signalOverflow("event queue overflow")
		return
	}
	watcher.scheduleRestart(err)
}

func (watcher *Watcher) signalOverflow(reason string) {
	if watcher.onOverflow != nil {
		watcher.onOverflow(reason)
	}
}

// Metrics reports current watcher stats.
func (watcher *Watcher) Metrics() Metrics {
	if watcher == nil {
		return Metrics{}
	}
	watcher.mutex.Lock()
	active := len(watcher.watched)
	watcher.mutex.Unlock()
	watcher.restartMutex.Lock()
	restartAttempts := watcher.restartAttempts
	watcher.restartMutex.Unlock()
	return Metrics{
		ActiveWatches:   active,
		EventsDelivered: atomic.LoadUint64(&watcher.eventsDelivered),
		EventsCoalesced: atomic.LoadUint64(&watcher.eventsCoalesced),
		Errors:          atomic.LoadUint64(&watcher.errorCount),
		RestartAttempts: restartAttempts,
	}
}

func (watcher *Watcher) logWarn(message string, fields map[string]string) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Warn(message, fields)
}

func (watcher *Watcher) logDebug(message, path string, activeCount int) {
	if watcher == nil || watcher.logger == nil {
		return
	}
	watcher.logger.Debug(message, map[string]string{
		"path":           path,
		"active_watches": strconv.Itoa(activeCount),
	})
}
