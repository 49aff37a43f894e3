// Package taskqueue decouples the synchronous API from the slow lifecycle
// operations. Work items are published to a durable queue and push-delivered
// as HTTP POSTs to per-operation task paths, carrying a signed token header
// so handlers can authenticate the dispatcher. Delivery is at-least-once:
// handlers are expected to be idempotent or tolerant of duplicates.
package taskqueue

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// Task is one unit of work addressed to an HTTP task path.
type Task struct {
	ID      string          `json:"id"`
	Path    string          `json:"path"`
	Payload json.RawMessage `json:"payload"`
}

// JobStatus tracks a task's delivery state for API polling.
type JobStatus struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Dispatcher enqueues work items for asynchronous delivery.
type Dispatcher interface {
	Enqueue(ctx context.Context, path string, payload any) (JobStatus, error)
}
