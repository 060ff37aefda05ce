package sandbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/runtime"
)

// DefaultProbeTimeout bounds the HTTP liveness probe so a hung container
// cannot block a caller indefinitely.
const DefaultProbeTimeout = 2 * time.Second

// Health is the layered result of a sandbox health check. The three failure
// layers are distinguishable: container missing, container present but not
// running, and container running but the in-process server not yet
// accepting connections.
type Health struct {
	Status       string `json:"status"`
	Running      bool   `json:"running"`
	IsResponding bool   `json:"isResponding"`
	URL          string `json:"url,omitempty"`
}

// HealthChecker probes sandbox liveness. Checks are read-only and take no
// locks.
type HealthChecker struct {
	rt      runtime.Runtime
	client  *http.Client
	timeout time.Duration

	// probeURL builds the in-network probe address for a container.
	// Overridable in tests.
	probeURL func(info runtime.Info) string
}

// NewHealthChecker constructs a checker probing the container's internal
// port.
func NewHealthChecker(rt runtime.Runtime, internalPort int, timeout time.Duration) *HealthChecker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HealthChecker{
		rt:      rt,
		client:  &http.Client{},
		timeout: timeout,
		probeURL: func(info runtime.Info) string {
			return fmt.Sprintf("http://%s:%d/", info.Address, internalPort)
		},
	}
}

// Check probes the sandbox for the given key. Any HTTP response, including
// 4xx/5xx, counts as responding; only connection failure or timeout counts
// as not-responding.
func (h *HealthChecker) Check(ctx context.Context, projectID, sessionID string) (Health, error) {
	name := ContainerName(projectID, sessionID)
	info, err := h.rt.Inspect(ctx, name)
	if err != nil {
		return Health{}, fmt.Errorf("sandbox: health inspect %s: %w", name, err)
	}

	switch info.State {
	case runtime.StateNotFound:
		return Health{Status: StatusNotFound}, nil
	case runtime.StateStopped:
		return Health{Status: StatusStopped}, nil
	}

	health := Health{Status: StatusRunning, Running: true, URL: h.probeURL(info)}

	probeCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, health.URL, nil)
	if err != nil {
		return health, nil
	}
	resp, err := h.client.Do(req)
	if err != nil {
		// Connection refused or timed out: running but not yet responding.
		return health, nil
	}
	resp.Body.Close()

	health.IsResponding = true
	return health, nil
}
