package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process queue, used when no external queue endpoint
// is configured and throughout the tests. Jobs are stored but never run.
type MemoryQueue struct {
	mu   sync.RWMutex
	jobs []Job
	byID map[string]int
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{byID: make(map[string]int)}
}

// Enqueue records a pending job for the given handler.
func (mq *MemoryQueue) Enqueue(ctx context.Context, handler string, payload json.RawMessage) (*Job, error) {
	now := time.Now().UTC()
	job := Job{
		ID:        uuid.NewString(),
		Handler:   handler,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	mq.mu.Lock()
	mq.byID[job.ID] = len(mq.jobs)
	mq.jobs = append(mq.jobs, job)
	mq.mu.Unlock()

	return &job, nil
}

// GetJob returns the job with the given id.
func (mq *MemoryQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	idx, ok := mq.byID[id]
	if !ok {
		return nil, fmt.Errorf("job %q not found", id)
	}
	job := mq.jobs[idx]
	return &job, nil
}

// ListJobs returns jobs oldest first, optionally filtered by status.
func (mq *MemoryQueue) ListJobs(ctx context.Context, opts ListOptions) ([]Job, error) {
	mq.mu.RLock()
	defer mq.mu.RUnlock()

	var out []Job
	for _, job := range mq.jobs {
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		out = append(out, job)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory queue.
func (mq *MemoryQueue) Close() error { return nil }
