// Package config holds the startup configuration. Validation is strict:
// the coordination core never starts with an ambiguous restart target or an
// empty watch scope.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/restart"
)

type Config struct {
	Specs       []aggregate.WatchSpec
	Programs    []string
	Any         bool
	DitherMax   time.Duration
	Debounce    time.Duration
	MetricsAddr string
	LogLevel    logging.Level
}

// fileSpec is one watch entry in the optional YAML config file. The file
// exists so a single watcher can carry several specs with per-path
// recursion and event sets, which the flag surface cannot express.
type fileSpec struct {
	Path      string   `yaml:"path"`
	Recursive bool     `yaml:"recursive"`
	Events    []string `yaml:"events"`
}

type configFile struct {
	Watch []fileSpec `yaml:"watch"`
}

// LoadSpecsFile reads watch specs from a YAML file. An empty event list
// defaults to all four change kinds.
func LoadSpecsFile(path string) ([]aggregate.WatchSpec, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed configFile
	if err := yaml.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	specs := make([]aggregate.WatchSpec, 0, len(parsed.Watch))
	for index, entry := range parsed.Watch {
		if entry.Path == "" {
			return nil, fmt.Errorf("config file %s: watch entry %d has no path", path, index)
		}
		events, err := ParseTypeSet(entry.Events)
		if err != nil {
			return nil, fmt.Errorf("config file %s: watch entry %d: %w", path, index, err)
		}
		specs = append(specs, aggregate.WatchSpec{
			Path:      entry.Path,
			Recursive: entry.Recursive,
			Events:    events,
		})
	}
	return specs, nil
}

// ParseTypeSet converts event-type names into a TypeSet. An empty list
// means all types.
func ParseTypeSet(names []string) (aggregate.TypeSet, error) {
	if len(names) == 0 {
		return aggregate.AllTypes(), nil
	}
	set := aggregate.TypeSet{}
	for _, name := range names {
		switch aggregate.EventType(name) {
		case aggregate.TypeCreated:
			set.Created = true
		case aggregate.TypeModified:
			set.Modified = true
		case aggregate.TypeDeleted:
			set.Deleted = true
		case aggregate.TypeMoved:
			set.Moved = true
		default:
			return aggregate.TypeSet{}, fmt.Errorf("unknown event type %q", name)
		}
	}
	return set, nil
}

// Target resolves the validated restart target.
func (config *Config) Target() restart.Target {
	if config.Any {
		return restart.AnyRunning()
	}
	return restart.ExplicitNames(config.Programs)
}

// Validate rejects ambiguous or incomplete configuration before the core
// starts.
func (config *Config) Validate() error {
	if len(config.Specs) == 0 {
		return errors.New("at least one watch path is required")
	}
	for _, spec := range config.Specs {
		if spec.Path == "" {
			return errors.New("watch spec has no path")
		}
		if _, err := os.Stat(spec.Path); err != nil {
			return fmt.Errorf("watch path %s: %w", spec.Path, err)
		}
		if spec.Events.IsZero() {
			return fmt.Errorf("watch path %s has an empty event set", spec.Path)
		}
	}

	if config.Any && len(config.Programs) > 0 {
		return errors.New("programs and any-running are mutually exclusive")
	}
	if !config.Any && len(config.Programs) == 0 {
		return errors.New("either a program list or any-running is required")
	}

	if config.DitherMax < 0 {
		return errors.New("dither max must not be negative")
	}
	return nil
}
