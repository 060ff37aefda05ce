// Package kerr defines the error taxonomy shared across the Kosuke core.
package kerr

import (
	"errors"
	"fmt"
)

// ErrNotFound reports an absent sandbox, job, session, or project.
var ErrNotFound = errors.New("not found")

// NotFound wraps ErrNotFound with a description of what was missing.
func NotFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// ProvisioningError reports a failed sandbox provisioning attempt: the
// container runtime was unavailable or the repository checkout failed.
// Callers may retry; the core never retries it itself.
type ProvisioningError struct {
	Step string // "container", "checkout", "database", "start"
	Err  error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// InvalidStateError reports an operation attempted from the wrong project or
// job status. It is never retried and never silently corrected.
type InvalidStateError struct {
	Entity string
	Have   string
	Want   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s is %s, operation requires %s", e.Entity, e.Have, e.Want)
}

// QueueError reports a failed enqueue/remove against the durable job queue.
// Fatal for cancellation; best-effort paths log and continue instead.
type QueueError struct {
	Op  string
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// ExternalServiceError reports a failed call to the source-control provider
// or the container runtime.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
