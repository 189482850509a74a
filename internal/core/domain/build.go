package domain

// PullConfig describes an authenticated export pull from a running Botpress server.
type PullConfig struct {
	URL       string `json:"url"`
	AuthToken string `json:"token"`
}

// DaemonOptions configures the connection to the container-build daemon.
// An empty Host means the connection is resolved from the environment (DOCKER_HOST and friends).
type DaemonOptions struct {
	Host       string `json:"host,omitempty"`
	APIVersion string `json:"api_version,omitempty"`
}

// BuildOptions holds the optional tags for a single build operation.
type BuildOptions struct {
	BaseImageTag string `json:"base_tag,omitempty"`
	OutputTag    string `json:"tag,omitempty"`
}

// State is the position of a Build in its build operation.
type State int

const (
	StateIdle State = iota
	StatePinging
	StateResolvingTags
	StatePackaging
	StateSubmitting
	StateMonitoring
	StateSucceeded
	StateFailed
)

// Active reports whether a build operation is in progress.
func (s State) Active() bool {
	return s >= StatePinging && s <= StateMonitoring
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePinging:
		return "pinging"
	case StateResolvingTags:
		return "resolving_tags"
	case StatePackaging:
		return "packaging"
	case StateSubmitting:
		return "submitting"
	case StateMonitoring:
		return "monitoring"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// EventKind classifies a daemon build event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventError
)

// Event is a single classified message from the daemon build stream.
type Event struct {
	Kind EventKind
	Text string
}
