package jobs

import (
	"math/rand"
	"testing"

	"github.com/Kosuke-Org/kosuke-core-sub003/internal/models"
)

func TestBuildMachine_HappyPath(t *testing.T) {
	steps := []struct{ from, to string }{
		{models.BuildPending, models.BuildRunning},
		{models.BuildRunning, models.BuildValidating},
		{models.BuildValidating, models.BuildCompleted},
	}
	for _, s := range steps {
		if !BuildMachine.CanTransition(s.from, s.to) {
			t.Errorf("CanTransition(%q, %q) = false, want true", s.from, s.to)
		}
	}
}

func TestBuildMachine_NoBackward(t *testing.T) {
	invalid := []struct{ from, to string }{
		{models.BuildRunning, models.BuildPending},
		{models.BuildValidating, models.BuildRunning},
		{models.BuildCompleted, models.BuildRunning},
		{models.BuildPending, models.BuildValidating},
		{models.BuildPending, models.BuildCompleted},
	}
	for _, s := range invalid {
		if BuildMachine.CanTransition(s.from, s.to) {
			t.Errorf("CanTransition(%q, %q) = true, want false", s.from, s.to)
		}
	}
}

func TestBuildMachine_CancelFromAnyNonTerminal(t *testing.T) {
	for _, from := range []string{models.BuildPending, models.BuildRunning, models.BuildValidating} {
		if !BuildMachine.CanTransition(from, models.BuildCancelled) {
			t.Errorf("cancel from %q rejected", from)
		}
	}
}

// TestNoResurrection drives random transition sequences through every
// family's machine and asserts that no sequence ever leaves a terminal
// state.
func TestNoResurrection(t *testing.T) {
	machines := map[string]*Machine[string]{
		"build":       BuildMachine,
		"submit":      SubmitMachine,
		"deploy":      DeployMachine,
		"vamos":       VamosMachine,
		"environment": EnvironmentMachine,
		"maintenance": MaintenanceMachine,
	}
	statuses := []string{
		models.BuildPending, models.BuildRunning, models.BuildValidating,
		models.BuildCompleted, models.BuildFailed, models.BuildCancelled,
		models.SubmitReviewing, models.SubmitCommitting, models.SubmitCreatingPR,
		models.SubmitDone, models.EnvAnalyzing,
	}

	rng := rand.New(rand.NewSource(42))
	for name, m := range machines {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 1000; i++ {
				state := statuses[rng.Intn(len(statuses))]
				for step := 0; step < 20; step++ {
					target := statuses[rng.Intn(len(statuses))]
					if m.IsTerminal(state) && m.CanTransition(state, target) {
						t.Fatalf("terminal state %q allowed transition to %q", state, target)
					}
					if m.CanTransition(state, target) {
						state = target
					}
				}
			}
		})
	}
}

func TestPredecessors(t *testing.T) {
	from := BuildMachine.Predecessors(models.BuildCancelled)
	if len(from) != 3 {
		t.Fatalf("Predecessors(cancelled) = %v, want 3 statuses", from)
	}
	seen := map[string]bool{}
	for _, s := range from {
		seen[s] = true
	}
	for _, want := range []string{models.BuildPending, models.BuildRunning, models.BuildValidating} {
		if !seen[want] {
			t.Errorf("Predecessors(cancelled) missing %q", want)
		}
	}
}

func TestPredecessors_NoneIntoPending(t *testing.T) {
	if got := BuildMachine.Predecessors(models.BuildPending); len(got) != 0 {
		t.Errorf("Predecessors(pending) = %v, want none", got)
	}
}
