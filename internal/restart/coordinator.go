// Package restart turns a dirty-tick verdict into restart commands against
// the configured target processes.
package restart

import (
	"fmt"
	"strings"

	"fseventwatcher/internal/logging"
	"fseventwatcher/internal/metrics"
)

type Options struct {
	Logger   *logging.Logger
	Registry *metrics.Registry
}

// Coordinator resolves a restart target against the live process list and
// issues stop/start pairs. Failures on one target never abort the rest.
type Coordinator struct {
	client   ProcessClient
	logger   *logging.Logger
	registry *metrics.Registry
}

func NewCoordinator(client ProcessClient, options Options) *Coordinator {
	registry := options.Registry
	if registry == nil {
		registry = metrics.Default
	}
	return &Coordinator{
		client:   client,
		logger:   options.Logger,
		registry: registry,
	}
}

// Restart resolves the target and restarts each selected RUNNING process.
// Targets that are not running are skipped, not errors; a restart call
// failing for one process is logged and the remaining targets proceed.
// Only a failure to enumerate processes is returned, so the caller can
// re-mark the dirty flag instead of losing the pending changes.
func (coordinator *Coordinator) Restart(target Target) error {
	if coordinator == nil || coordinator.client == nil {
		return fmt.Errorf("restart coordinator has no process client")
	}

	processes, err := coordinator.client.ListProcesses()
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}

	waiting := make(map[string]struct{}, len(target.Names()))
	for _, name := range target.Names() {
		waiting[name] = struct{}{}
	}

	for _, process := range processes {
		namespec := process.Namespec()
		_, byName := waiting[process.Name]
		_, byNamespec := waiting[namespec]
		if !target.Any() && !byName && !byNamespec {
			continue
		}

		if process.Running() {
			coordinator.restartProcess(namespec)
		} else {
			coordinator.registry.IncRestartSkipped()
			coordinator.logInfo("process not running, skipped", map[string]string{
				"process": namespec,
				"state":   process.StateName,
			})
		}
		delete(waiting, process.Name)
		delete(waiting, namespec)
	}

	if len(waiting) > 0 {
		missing := make([]string, 0, len(waiting))
		for name := range waiting {
			missing = append(missing, name)
		}
		coordinator.logWarn("configured programs not found", map[string]string{
			"programs": strings.Join(missing, ","),
		})
	}
	return nil
}

func (coordinator *Coordinator) restartProcess(namespec string) {
	coordinator.logInfo("restarting process", map[string]string{
		"process": namespec,
	})

	failed := false
	if err := coordinator.client.StopProcess(namespec); err != nil {
		failed = true
		coordinator.logWarn("stop failed", map[string]string{
			"process": namespec,
			"error":   err.Error(),
		})
	}
	if err := coordinator.client.StartProcess(namespec); err != nil {
		failed = true
		coordinator.logWarn("start failed", map[string]string{
			"process": namespec,
			"error":   err.Error(),
		})
	}

	if failed {
		coordinator.registry.IncRestartFailure()
		return
	}
	coordinator.registry.IncRestartIssued()
	coordinator.logInfo("restarted process", map[string]string{
		"process": namespec,
	})
}

func (coordinator *Coordinator) logInfo(message string, fields map[string]string) {
	if coordinator.logger != nil {
		coordinator.logger.Info(message, fields)
	}
}

func (coordinator *Coordinator) logWarn(message string, fields map[string]string) {
	if coordinator.logger != nil {
		coordinator.logger.Warn(message, fields)
	}
}
