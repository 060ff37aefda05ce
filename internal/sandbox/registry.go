// Package sandbox tracks the runtime state of per-(project, session)
// development containers.
package sandbox

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/config"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/kerr"
	"github.com/Kosuke-Org/kosuke-core-sub003/internal/runtime"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// Sandbox statuses.
const (
	StatusNotFound = "not_found"
	StatusStopped  = "stopped"
	StatusRunning  = "running"
	StatusError    = "error"
)

// Sandbox is the runtime state of one development container.
type Sandbox struct {
	ProjectID string `json:"projectId"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name"`
	URL       string `json:"url"`
	Status    string `json:"status"`
}

// Modes for the in-sandbox process.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// CreateParams describes a sandbox to provision.
type CreateParams struct {
	ProjectID    string
	SessionID    string
	BranchName   string
	RepoURL      string
	GithubToken  string
	Mode         string
	OrgID        string
	ServicesMode string
}

// Registry tracks one container per (project, session) pair. It is
// constructed once at process start and injected where needed; creation for
// a given key is single-flight and mutually exclusive with cancellation.
type Registry struct {
	rt      runtime.Runtime
	git     Git
	adminDB *gorm.DB // nil disables per-sandbox database provisioning
	cfg     config.Config
	workdir string

	locks *KeyMutex
	group singleflight.Group
}

// NewRegistry constructs a Registry. workdir is the root under which each
// sandbox's working tree is checked out.
func NewRegistry(rt runtime.Runtime, git Git, adminDB *gorm.DB, cfg config.Config, workdir string) *Registry {
	return &Registry{
		rt:      rt,
		git:     git,
		adminDB: adminDB,
		cfg:     cfg,
		workdir: workdir,
		locks:   NewKeyMutex(),
	}
}

// Locks exposes the per-key lock table so the cancellation coordinator can
// share it.
func (r *Registry) Locks() *KeyMutex { return r.locks }

// ContainerName derives the deterministic container name for a key. The
// name doubles as the container hostname.
func ContainerName(projectID, sessionID string) string {
	return fmt.Sprintf("kosuke-%s-%s", projectID, sessionID)
}

// LockKey is the key under which creation and cancellation serialize.
func LockKey(projectID, sessionID string) string {
	return projectID + "/" + sessionID
}

// Workdir returns the host path of a sandbox's working tree.
func (r *Registry) Workdir(projectID, sessionID string) string {
	return filepath.Join(r.workdir, ContainerName(projectID, sessionID))
}

// Get looks up the current runtime state of a sandbox. It queries the
// container runtime directly, never a cache. Returns kerr.ErrNotFound when
// no container exists for the key.
func (r *Registry) Get(ctx context.Context, projectID, sessionID string) (Sandbox, error) {
	name := ContainerName(projectID, sessionID)
	info, err := r.rt.Inspect(ctx, name)
	if err != nil {
		return Sandbox{}, &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}
	if info.State == runtime.StateNotFound {
		return Sandbox{}, kerr.NotFound("sandbox", name)
	}
	return r.fromInfo(projectID, sessionID, info), nil
}

// Create provisions a sandbox for the key, or returns the existing one if it
// is already running. Concurrent calls for the same key share a single
// provisioning attempt; the second caller waits for and receives the
// first's result.
func (r *Registry) Create(ctx context.Context, params CreateParams) (Sandbox, error) {
	if params.ProjectID == "" || params.SessionID == "" {
		return Sandbox{}, fmt.Errorf("sandbox: project and session ids are required")
	}
	if params.Mode == "" {
		params.Mode = ModeDevelopment
	}

	key := LockKey(params.ProjectID, params.SessionID)
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		unlock := r.locks.Lock(key)
		defer unlock()
		return r.provision(ctx, params)
	})
	if err != nil {
		return Sandbox{}, err
	}
	return v.(Sandbox), nil
}

// provision does the actual work under the key lock.
func (r *Registry) provision(ctx context.Context, params CreateParams) (Sandbox, error) {
	name := ContainerName(params.ProjectID, params.SessionID)

	// Idempotent: a running sandbox for the key is returned unchanged.
	info, err := r.rt.Inspect(ctx, name)
	if err != nil {
		return Sandbox{}, &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}
	if info.State == runtime.StateRunning {
		return r.fromInfo(params.ProjectID, params.SessionID, info), nil
	}
	if info.State == runtime.StateStopped {
		// A stopped container is recreated from scratch.
		if err := r.rt.Remove(ctx, name); err != nil {
			return Sandbox{}, &kerr.ProvisioningError{Step: "container", Err: err}
		}
	}

	dir := r.Workdir(params.ProjectID, params.SessionID)
	if err := r.git.CloneAtBranch(params.RepoURL, params.GithubToken, params.BranchName, dir); err != nil {
		return Sandbox{}, &kerr.ProvisioningError{Step: "checkout", Err: err}
	}

	dbName := sandboxDatabaseName(params.ProjectID, params.SessionID)
	if r.adminDB != nil {
		if err := createSandboxDatabase(r.adminDB, dbName); err != nil {
			return Sandbox{}, &kerr.ProvisioningError{Step: "database", Err: err}
		}
	}

	env := []string{
		"KOSUKE_MODE=" + params.Mode,
		"KOSUKE_PROJECT_ID=" + params.ProjectID,
		"KOSUKE_SESSION_ID=" + params.SessionID,
		"KOSUKE_BRANCH=" + params.BranchName,
		"KOSUKE_DATABASE=" + dbName,
	}
	if params.ServicesMode != "" {
		env = append(env, "KOSUKE_SERVICES_MODE="+params.ServicesMode)
	}

	created, err := r.rt.Create(ctx, runtime.CreateSpec{
		Name:    name,
		Image:   r.cfg.Docker.Image,
		Network: r.cfg.Docker.Network,
		Env:     env,
		Labels: map[string]string{
			"kosuke.project": params.ProjectID,
			"kosuke.session": params.SessionID,
			"kosuke.org":     params.OrgID,
		},
	})
	if err != nil {
		return Sandbox{}, &kerr.ProvisioningError{Step: "start", Err: err}
	}

	return r.fromInfo(params.ProjectID, params.SessionID, created), nil
}

// ListProject returns every sandbox for a project, one per session. Callers
// must not assume ordering and must filter by status themselves.
func (r *Registry) ListProject(ctx context.Context, projectID string) ([]Sandbox, error) {
	infos, err := r.rt.List(ctx, map[string]string{"kosuke.project": projectID})
	if err != nil {
		return nil, &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}

	out := make([]Sandbox, len(infos))
	g, gctx := errgroup.WithContext(ctx)
	for i, info := range infos {
		i, info := i, info
		g.Go(func() error {
			fresh, err := r.rt.Inspect(gctx, info.Name)
			if err != nil {
				return err
			}
			pid, sid := fresh.Labels["kosuke.project"], fresh.Labels["kosuke.session"]
			if pid == "" {
				pid, sid = splitContainerName(fresh.Name)
			}
			out[i] = r.fromInfo(pid, sid, fresh)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}
	return out, nil
}

// Stop stops the sandbox's container. Missing containers are a no-op.
func (r *Registry) Stop(ctx context.Context, projectID, sessionID string) error {
	key := LockKey(projectID, sessionID)
	unlock := r.locks.Lock(key)
	defer unlock()

	if err := r.rt.Stop(ctx, ContainerName(projectID, sessionID)); err != nil {
		return &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}
	return nil
}

// Teardown removes a sandbox's container and drops its database, used on
// project deletion.
func (r *Registry) Teardown(ctx context.Context, projectID, sessionID string) error {
	key := LockKey(projectID, sessionID)
	unlock := r.locks.Lock(key)
	defer unlock()

	if err := r.rt.Remove(ctx, ContainerName(projectID, sessionID)); err != nil {
		return &kerr.ExternalServiceError{Service: "container runtime", Err: err}
	}
	if r.adminDB != nil {
		if err := dropSandboxDatabase(r.adminDB, sandboxDatabaseName(projectID, sessionID)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) fromInfo(projectID, sessionID string, info runtime.Info) Sandbox {
	sb := Sandbox{
		ProjectID: projectID,
		SessionID: sessionID,
		Name:      info.Name,
		Status:    StatusStopped,
	}
	switch info.State {
	case runtime.StateRunning:
		sb.Status = StatusRunning
		sb.URL = fmt.Sprintf("https://%s.%s", info.Name, r.cfg.Sandbox.BaseDomain)
	case runtime.StateNotFound:
		sb.Status = StatusNotFound
	}
	return sb
}

func splitContainerName(name string) (projectID, sessionID string) {
	// kosuke-<project>-<session>; ids are uuids, so split on the last dash
	// group boundary is not reliable. The labels carry the truth; this is a
	// display fallback.
	const prefix = "kosuke-"
	if len(name) <= len(prefix) {
		return "", ""
	}
	rest := name[len(prefix):]
	if len(rest) > 37 && rest[36] == '-' {
		return rest[:36], rest[37:]
	}
	return rest, ""
}
