package runtime

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-memory Runtime used by tests and local development without a
// Docker daemon.
type Fake struct {
	mu         sync.Mutex
	containers map[string]Info
	labels     map[string]map[string]string

	// CreateErr, when set, is returned by Create to simulate an
	// unavailable runtime.
	CreateErr error
	// Creations counts provisioning calls, used to assert single-flight.
	Creations int
}

// NewFake returns an empty fake runtime.
func NewFake() *Fake {
	return &Fake{
		containers: make(map[string]Info),
		labels:     make(map[string]map[string]string),
	}
}

func (f *Fake) Create(ctx context.Context, spec CreateSpec) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Creations++
	if f.CreateErr != nil {
		return Info{}, f.CreateErr
	}
	if existing, ok := f.containers[spec.Name]; ok && existing.State == StateRunning {
		return Info{}, fmt.Errorf("runtime: container %s already exists", spec.Name)
	}
	info := Info{Name: spec.Name, State: StateRunning, Address: spec.Name}
	f.containers[spec.Name] = info
	f.labels[spec.Name] = spec.Labels
	return info, nil
}

func (f *Fake) Inspect(ctx context.Context, name string) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.containers[name]
	if !ok {
		return Info{Name: name, State: StateNotFound}, nil
	}
	info.Labels = f.labels[name]
	return info, nil
}

func (f *Fake) List(ctx context.Context, labels map[string]string) ([]Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Info
	for name, info := range f.containers {
		if matchLabels(f.labels[name], labels) {
			info.Labels = f.labels[name]
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *Fake) Stop(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.containers[name]
	if !ok {
		return nil
	}
	info.State = StateStopped
	info.Address = ""
	f.containers[name] = info
	return nil
}

func (f *Fake) Remove(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, name)
	delete(f.labels, name)
	return nil
}

// SetState overrides a container's state, for test setup.
func (f *Fake) SetState(name, state, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[name] = Info{Name: name, State: state, Address: address}
}

func matchLabels(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
