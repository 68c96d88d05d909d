package aggregate

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// EventType is a normalized filesystem change kind.
type EventType string

const (
	TypeCreated  EventType = "created"
	TypeModified EventType = "modified"
	TypeDeleted  EventType = "deleted"
	TypeMoved    EventType = "moved"
)

// TypeSet selects which change kinds a watch spec reacts to.
type TypeSet struct {
	Created  bool
	Modified bool
	Deleted  bool
	Moved    bool
}

// AllTypes returns a set matching every change kind.
func AllTypes() TypeSet {
	return TypeSet{Created: true, Modified: true, Deleted: true, Moved: true}
}

func (set TypeSet) Has(eventType EventType) bool {
	switch eventType {
	case TypeCreated:
		return set.Created
	case TypeModified:
		return set.Modified
	case TypeDeleted:
		return set.Deleted
	case TypeMoved:
		return set.Moved
	default:
		return false
	}
}

func (set TypeSet) IsZero() bool {
	return !set.Created && !set.Modified && !set.Deleted && !set.Moved
}

func (set TypeSet) String() string {
	names := make([]string, 0, 4)
	if set.Created {
		names = append(names, string(TypeCreated))
	}
	if set.Modified {
		names = append(names, string(TypeModified))
	}
	if set.Deleted {
		names = append(names, string(TypeDeleted))
	}
	if set.Moved {
		names = append(names, string(TypeMoved))
	}
	return strings.Join(names, ",")
}

// WatchSpec scopes the aggregator to a path. Non-recursive specs cover the
// path and its direct children; recursive specs cover any descendant.
// Immutable after configuration load.
type WatchSpec struct {
	Path      string
	Recursive bool
	Events    TypeSet
}

// Covers reports whether the spec's scope includes the given path.
func (spec WatchSpec) Covers(path string) bool {
	root := filepath.Clean(spec.Path)
	candidate := filepath.Clean(path)
	if candidate == root {
		return true
	}
	if spec.Recursive {
		return isWithinPath(root, candidate)
	}
	return filepath.Dir(candidate) == root
}

// Matches reports whether the event is in scope and of a watched kind.
func (spec WatchSpec) Matches(event ChangeEvent) bool {
	return spec.Events.Has(event.Type) && spec.Covers(event.Path)
}

func (spec WatchSpec) String() string {
	mode := "non-recursive"
	if spec.Recursive {
		mode = "recursive"
	}
	return fmt.Sprintf("%s (%s, events=%s)", spec.Path, mode, spec.Events)
}

// ChangeEvent is a normalized filesystem change notification.
type ChangeEvent struct {
	Path      string
	Type      EventType
	Timestamp time.Time
}

func isWithinPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
