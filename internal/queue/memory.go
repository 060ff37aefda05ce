package queue

import (
	"context"
	"sync"
)

// Memory is an in-process Queue used by tests. It records enough state to
// assert on enqueue, removal, and recurring registration behavior.
type Memory struct {
	mu        sync.Mutex
	tasks     []Task
	recurring map[string]recurringEntry
	cancels   map[string]context.CancelFunc
	removed   []string

	// EnqueueErr and RemoveErr, when set, are returned to simulate a queue
	// outage.
	EnqueueErr error
	RemoveErr  error
}

type recurringEntry struct {
	Every string
	Task  Task
}

// NewMemory returns an empty in-memory queue.
func NewMemory() *Memory {
	return &Memory{
		recurring: make(map[string]recurringEntry),
		cancels:   make(map[string]context.CancelFunc),
	}
}

func (m *Memory) Enqueue(ctx context.Context, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.tasks = append(m.tasks, task)
	return nil
}

func (m *Memory) Remove(ctx context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	for i, t := range m.tasks {
		if t.ID == jobID {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			break
		}
	}
	if cancel, ok := m.cancels[jobID]; ok {
		cancel()
		delete(m.cancels, jobID)
	}
	m.removed = append(m.removed, jobID)
	return nil
}

func (m *Memory) EnqueueRecurring(ctx context.Context, key, every string, task Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.EnqueueErr != nil {
		return m.EnqueueErr
	}
	m.recurring[key] = recurringEntry{Every: every, Task: task}
	return nil
}

func (m *Memory) RemoveRecurring(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return m.RemoveErr
	}
	delete(m.recurring, key)
	return nil
}

// Pending returns a copy of the queued tasks.
func (m *Memory) Pending() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, len(m.tasks))
	copy(out, m.tasks)
	return out
}

// Removed returns every job id passed to Remove, in order.
func (m *Memory) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.removed))
	copy(out, m.removed)
	return out
}

// RecurringCount returns the number of live recurring registrations for key
// (0 or 1).
func (m *Memory) RecurringCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recurring[key]; ok {
		return 1
	}
	return 0
}

// RecurringEvery returns the interval descriptor registered for key.
func (m *Memory) RecurringEvery(key string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recurring[key].Every
}

// BindCancel registers a cancel function invoked when jobID is removed,
// simulating the queue's in-flight cancellation signal.
func (m *Memory) BindCancel(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID] = cancel
}
