// Package jobs provides the shared state-machine and status-store helpers
// used by every job family (build, deploy, vamos, environment, maintenance).
package jobs

import "github.com/Kosuke-Org/kosuke-core-sub003/internal/models"

// Machine is a forward-only transition table over a family's status enum.
// Terminal statuses have no outgoing transitions; a job never leaves one.
type Machine[S ~string] struct {
	next     map[S][]S
	terminal map[S]bool
}

// NewMachine builds a Machine from a transition map and a terminal set.
func NewMachine[S ~string](next map[S][]S, terminal []S) *Machine[S] {
	term := make(map[S]bool, len(terminal))
	for _, s := range terminal {
		term[s] = true
	}
	return &Machine[S]{next: next, terminal: term}
}

// CanTransition reports whether from -> to is a legal forward transition.
func (m *Machine[S]) CanTransition(from, to S) bool {
	if m.terminal[from] {
		return false
	}
	for _, s := range m.next[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is in the family's terminal set.
func (m *Machine[S]) IsTerminal(s S) bool {
	return m.terminal[s]
}

// Predecessors returns every status with a legal transition into to.
// Used to build the WHERE clause of compare-and-set status updates.
func (m *Machine[S]) Predecessors(to S) []S {
	var from []S
	for s, nexts := range m.next {
		for _, n := range nexts {
			if n == to {
				from = append(from, s)
				break
			}
		}
	}
	return from
}

// terminalSet is shared by every family per the job invariants.
func terminalSet[S ~string]() []S {
	return []S{S(models.BuildCompleted), S(models.BuildFailed), S(models.BuildCancelled)}
}

// BuildMachine is the build job state machine:
// pending -> running -> validating -> completed | failed | cancelled.
// Cancellation is legal from any non-terminal state.
var BuildMachine = NewMachine(map[string][]string{
	models.BuildPending:    {models.BuildRunning, models.BuildFailed, models.BuildCancelled},
	models.BuildRunning:    {models.BuildValidating, models.BuildCompleted, models.BuildFailed, models.BuildCancelled},
	models.BuildValidating: {models.BuildCompleted, models.BuildFailed, models.BuildCancelled},
}, terminalSet[string]())

// SubmitMachine is the post-build submit sub-flow:
// pending -> reviewing -> committing -> creating_pr -> done | failed.
var SubmitMachine = NewMachine(map[string][]string{
	models.SubmitPending:    {models.SubmitReviewing, models.SubmitFailed},
	models.SubmitReviewing:  {models.SubmitCommitting, models.SubmitFailed},
	models.SubmitCommitting: {models.SubmitCreatingPR, models.SubmitFailed},
	models.SubmitCreatingPR: {models.SubmitDone, models.SubmitFailed},
}, []string{models.SubmitDone, models.SubmitFailed})

// DeployMachine: pending -> running -> completed | failed | cancelled.
var DeployMachine = NewMachine(map[string][]string{
	models.DeployPending: {models.DeployRunning, models.DeployFailed, models.DeployCancelled},
	models.DeployRunning: {models.DeployCompleted, models.DeployFailed, models.DeployCancelled},
}, terminalSet[string]())

// VamosMachine: pending -> running -> completed | failed | cancelled.
var VamosMachine = NewMachine(map[string][]string{
	models.VamosPending: {models.VamosRunning, models.VamosFailed, models.VamosCancelled},
	models.VamosRunning: {models.VamosCompleted, models.VamosFailed, models.VamosCancelled},
}, terminalSet[string]())

// EnvironmentMachine: pending -> analyzing -> completed | failed | cancelled.
// A pending job may complete directly: confirmation does not wait for a
// worker to have claimed the job.
var EnvironmentMachine = NewMachine(map[string][]string{
	models.EnvPending:   {models.EnvAnalyzing, models.EnvCompleted, models.EnvFailed, models.EnvCancelled},
	models.EnvAnalyzing: {models.EnvCompleted, models.EnvFailed, models.EnvCancelled},
}, terminalSet[string]())

// MaintenanceMachine: pending -> running -> completed | failed | cancelled.
var MaintenanceMachine = NewMachine(map[string][]string{
	models.MaintenancePending: {models.MaintenanceRunning, models.MaintenanceFailed, models.MaintenanceCancelled},
	models.MaintenanceRunning: {models.MaintenanceCompleted, models.MaintenanceFailed, models.MaintenanceCancelled},
}, terminalSet[string]())
