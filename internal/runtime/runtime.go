// Package runtime abstracts the container runtime that hosts sandboxes.
package runtime

import "context"

// Container state constants as reported by Inspect.
const (
	StateNotFound = "not_found"
	StateStopped  = "stopped"
	StateRunning  = "running"
)

// CreateSpec describes a container to provision.
type CreateSpec struct {
	Name    string
	Image   string
	Network string
	Env     []string
	Cmd     []string
	Labels  map[string]string
}

// Info is a snapshot of one container's runtime state.
type Info struct {
	Name    string
	State   string // StateNotFound, StateStopped, StateRunning
	Address string // internal routable address, empty unless running
	Labels  map[string]string
}

// Runtime provisions and inspects named containers. Inspect queries the
// runtime directly rather than any cache so callers never see stale state.
type Runtime interface {
	Create(ctx context.Context, spec CreateSpec) (Info, error)
	Inspect(ctx context.Context, name string) (Info, error)
	List(ctx context.Context, labels map[string]string) ([]Info, error)
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}
