package attest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySink is an in-process sink, used when no external store endpoint is
// configured and throughout the tests.
type MemorySink struct {
	mu      sync.RWMutex
	records []Attestation
	byID    map[string]int
	closed  bool
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{byID: make(map[string]int)}
}

// GenerateAndCreate mints an attestation from the command and stores it.
func (ms *MemorySink) GenerateAndCreate(ctx context.Context, cmd Command) (*Attestation, error) {
	ts := cmd.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	att := Attestation{
		ID:         uuid.NewString(),
		Subjects:   cmd.Subjects,
		Predicates: cmd.Predicates,
		Contexts:   cmd.Contexts,
		Actors:     cmd.Actors,
		Timestamp:  ts,
		Source:     Source,
		Attributes: cmd.Attributes,
	}

	ms.mu.Lock()
	ms.byID[att.ID] = len(ms.records)
	ms.records = append(ms.records, att)
	ms.mu.Unlock()

	return &att, nil
}

// Exists reports whether an attestation with the given id was recorded.
func (ms *MemorySink) Exists(ctx context.Context, id string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.byID[id]
	return ok, nil
}

// Query returns stored attestations matching the filter, oldest first.
func (ms *MemorySink) Query(ctx context.Context, filter Filter) ([]Attestation, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []Attestation
	for _, att := range ms.records {
		if !matches(&att, &filter) {
			continue
		}
		out = append(out, att)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close marks the sink closed. Stored attestations remain readable so tests
// can inspect them after shutdown.
func (ms *MemorySink) Close() error {
	ms.mu.Lock()
	ms.closed = true
	ms.mu.Unlock()
	return nil
}

// Len reports the number of stored attestations.
func (ms *MemorySink) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}

func matches(att *Attestation, filter *Filter) bool {
	if !anyOf(att.Subjects, filter.Subjects) ||
		!anyOf(att.Predicates, filter.Predicates) ||
		!anyOf(att.Contexts, filter.Contexts) ||
		!anyOf(att.Actors, filter.Actors) {
		return false
	}
	if !filter.Since.IsZero() && att.Timestamp.Before(filter.Since) {
		return false
	}
	if !filter.Until.IsZero() && att.Timestamp.After(filter.Until) {
		return false
	}
	return true
}

// anyOf reports whether have contains at least one of want. An empty want
// matches anything.
func anyOf(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
