package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job statuses as reported by the queue.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is a unit of scheduled work. Payload is the original request body for
// the handler that will eventually run it.
type Job struct {
	ID        string          `json:"id"`
	Handler   string          `json:"handler"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListOptions narrows ListJobs. Zero values mean no filtering.
type ListOptions struct {
	Status string `json:"status,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Queue is the narrow interface to the external job queue. The service only
// hands work off; it never executes queued jobs itself.
type Queue interface {
	Enqueue(ctx context.Context, handler string, payload json.RawMessage) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	ListJobs(ctx context.Context, opts ListOptions) ([]Job, error)
	Close() error
}
