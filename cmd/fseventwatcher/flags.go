package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"fseventwatcher/internal/aggregate"
	"fseventwatcher/internal/config"
	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/version"
)

const (
	envMetricsAddr = "FSEVENTWATCHER_METRICS_ADDR"
	envLogLevel    = "FSEVENTWATCHER_LOG_LEVEL"
)

// parseConfig turns command-line arguments into a validated-shape Config.
// Validation proper (path existence, target exclusivity) happens in
// config.Validate before the core starts.
func parseConfig(args []string) (config.Config, bool, error) {
	flagSet := pflag.NewFlagSet("fseventwatcher", pflag.ContinueOnError)
	flagSet.Usage = func() {}

	programs := flagSet.StringSliceP("programs", "p", nil, "process names (or group:name namespecs) to restart")
	anyRunning := flagSet.BoolP("any", "a", false, "restart every process in RUNNING state")
	watchMoved := flagSet.Bool("watch-moved", false, "react to moved files")
	watchCreated := flagSet.Bool("watch-created", false, "react to created files")
	watchDeleted := flagSet.Bool("watch-deleted", false, "react to deleted files")
	watchModified := flagSet.Bool("watch-modified", false, "react to modified files")
	watchAll := flagSet.Bool("watch-all", false, "react to every change kind (default when no --watch-* flag is given)")
	recursive := flagSet.BoolP("recursive", "r", false, "watch directories recursively")
	ditherMax := flagSet.Float64("dither-max", 0, "upper bound in seconds for the random restart delay (0 disables)")
	debounce := flagSet.Duration("debounce", 100*time.Millisecond, "per-path coalescing window for filesystem events")
	configFile := flagSet.String("config", "", "YAML file with additional watch specs")
	metricsAddr := flagSet.String("metrics-addr", os.Getenv(envMetricsAddr), "serve Prometheus metrics on this address (empty disables)")
	logLevel := flagSet.String("log-level", os.Getenv(envLogLevel), "log level: debug, info, warning, error")
	help := flagSet.BoolP("help", "h", false, "show help")
	showVersion := flagSet.BoolP("version", "v", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printUsage(flagSet)
			return config.Config{}, true, nil
		}
		return config.Config{}, false, err
	}
	if *help {
		printUsage(flagSet)
		return config.Config{}, true, nil
	}
	if *showVersion {
		fmt.Fprintf(os.Stdout, "fseventwatcher %s\n", version.String())
		return config.Config{}, true, nil
	}

	events := aggregate.TypeSet{
		Created:  *watchCreated,
		Modified: *watchModified,
		Deleted:  *watchDeleted,
		Moved:    *watchMoved,
	}
	if *watchAll || events.IsZero() {
		events = aggregate.AllTypes()
	}

	specs := make([]aggregate.WatchSpec, 0, flagSet.NArg())
	for _, path := range flagSet.Args() {
		specs = append(specs, aggregate.WatchSpec{
			Path:      path,
			Recursive: *recursive,
			Events:    events,
		})
	}
	if *configFile != "" {
		fileSpecs, err := config.LoadSpecsFile(*configFile)
		if err != nil {
			return config.Config{}, false, err
		}
		specs = append(specs, fileSpecs...)
	}

	level := logging.LevelInfo
	if *logLevel != "" {
		parsed, ok := logging.ParseLevel(*logLevel)
		if !ok {
			return config.Config{}, false, fmt.Errorf("invalid log level %q", *logLevel)
		}
		level = parsed
	}

	return config.Config{
		Specs:       specs,
		Programs:    *programs,
		Any:         *anyRunning,
		DitherMax:   time.Duration(*ditherMax * float64(time.Second)),
		Debounce:    *debounce,
		MetricsAddr: *metricsAddr,
		LogLevel:    level,
	}, false, nil
}

func printUsage(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `usage: fseventwatcher [flags] PATH [PATH...]

Supervisord event listener that restarts managed processes when watched
paths change. Must run under supervisord with a TICK event subscription:

    [eventlistener:fseventwatcher]
    command=fseventwatcher -a -r /srv/app/config
    events=TICK_60

Flags:
%s`, flagSet.FlagUsages())
}
