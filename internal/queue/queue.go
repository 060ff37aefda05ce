// Package queue defines the thin adapter over the durable job queue, plus
// the callback contract workers must honor. The concrete queue technology
// is an external collaborator; the core depends only on this interface.
package queue

import "context"

// Task is one unit of queued work.
type Task struct {
	ID      string `json:"id"`      // job store row id
	Name    string `json:"name"`    // job family: build, deploy, vamos, environment, maintenance
	Payload []byte `json:"payload"` // family-specific JSON
}

// Queue is the durable queue contract. Remove covers both a still-queued
// job (plain removal) and an actively-executing one (the worker's context
// is cancelled; it must observe cancellation and stop promptly). The queue
// guarantees at most one active consumer per job id; the core relies on
// that as a precondition for last-write-wins progress updates.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Remove(ctx context.Context, jobID string) error
	EnqueueRecurring(ctx context.Context, key, every string, task Task) error
	RemoveRecurring(ctx context.Context, key string) error
}

// ProgressReport is the ticket-level progress callback shape workers report
// through. Updates are last-write-wins on the job row.
type ProgressReport struct {
	CurrentTicketID  string  `json:"currentTicketId"`
	CompletedTickets int     `json:"completedTickets"`
	FailedTickets    int     `json:"failedTickets"`
	TotalCost        float64 `json:"totalCost"`
}

// Handler executes one dequeued task. The context is cancelled when the job
// is removed from the queue; handlers must stop making further tool calls
// promptly once cancelled.
type Handler func(ctx context.Context, task Task) error
