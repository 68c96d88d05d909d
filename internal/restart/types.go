package restart

// Process states as reported by supervisord.
const (
	StateStopped  = 0
	StateStarting = 10
	StateRunning  = 20
	StateBackoff  = 30
	StateStopping = 40
	StateExited   = 100
	StateFatal    = 200
	StateUnknown  = 1000
)

// ProcessInfo describes one managed process as reported by the control
// client.
type ProcessInfo struct {
	Name      string
	Group     string
	State     int
	StateName string
	PID       int
}

// Namespec returns the group-qualified process name used by supervisord
// control calls: "group:name" when the process lives in a group of a
// different name, otherwise just the name.
func (info ProcessInfo) Namespec() string {
	if info.Group != "" && info.Group != info.Name {
		return info.Group + ":" + info.Name
	}
	return info.Name
}

// Running reports whether the process is restart-eligible.
func (info ProcessInfo) Running() bool {
	return info.State == StateRunning
}

// ProcessClient is the external process-control collaborator.
type ProcessClient interface {
	ListProcesses() ([]ProcessInfo, error)
	StopProcess(namespec string) error
	StartProcess(namespec string) error
}

// Target selects which processes a restart applies to: an explicit name
// list or any running process. Exactly one of the two; validated at
// configuration load.
type Target struct {
	names []string
	any   bool
}

// ExplicitNames targets the named processes. Names may be plain process
// names or group-qualified namespecs.
func ExplicitNames(names []string) Target {
	return Target{names: names}
}

// AnyRunning targets every process currently in RUNNING state.
func AnyRunning() Target {
	return Target{any: true}
}

func (target Target) Any() bool {
	return target.any
}

func (target Target) Names() []string {
	return target.names
}
