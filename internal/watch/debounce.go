package watch

import (
	"time"

	"fseventwatcher/internal/aggregate"
)

type debounceEntry struct {
	timer   *time.Timer
	event   aggregate.ChangeEvent
	matched bool
}

// debouncer coalesces rapid events on the same path into one delivery. The
// dirty flag makes per-event delivery unnecessary; debouncing just keeps the
// bus quiet during write bursts.
type debouncer struct {
	duration time.Duration
	entries  map[string]debounceEntry
}

func newDebouncer(duration time.Duration) *debouncer {
	return &debouncer{
		duration: duration,
		entries:  make(map[string]debounceEntry),
	}
}

// schedule arms (or re-arms) the flush timer for a path. Returns true when
// an earlier event was coalesced into this one.
//
// A pending spec-matching event is never displaced by a later non-matching
// one: otherwise a Create followed by a Write inside the window would flush
// as modified and slip past a created-only watch spec.
func (debouncer *debouncer) schedule(path string, event aggregate.ChangeEvent, matched bool, flush func(string)) bool {
	if debouncer == nil {
		return false
	}
	entry := debouncer.entries[path]
	coalesced := entry.timer != nil
	if matched || !entry.matched {
		entry.event = event
		entry.matched = matched
	}
	if entry.timer == nil {
		entry.timer = time.AfterFunc(debouncer.duration, func() {
			flush(path)
		})
	} else {
		entry.timer.Reset(debouncer.duration)
	}
	debouncer.entries[path] = entry
	return coalesced
}

func (debouncer *debouncer) pop(path string) (aggregate.ChangeEvent, bool) {
	if debouncer == nil {
		return aggregate.ChangeEvent{}, false
	}
	entry, ok := debouncer.entries[path]
	if !ok {
		return aggregate.ChangeEvent{}, false
	}
	delete(debouncer.entries, path)
	return entry.event, true
}

func (debouncer *debouncer) stop() {
	if debouncer == nil {
		return
	}
	for _, entry := range debouncer.entries {
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	debouncer.entries = nil
}
