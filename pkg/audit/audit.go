// Package audit records every secret access performed during an
// evaluation run. Sinks receive events in the order the evaluator
// produced them; a Multi sink fans out to several destinations.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies what kind of access an event records.
type Action string

const (
	ActionResolve     Action = "resolve"
	ActionBatchImport Action = "batch_import"
	ActionCacheHit    Action = "cache_hit"
	ActionInject      Action = "inject"
)

// Event is a single audit record. Error carries the provider's message
// only; secret values never appear here.
type Event struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Action    Action        `json:"action"`
	Key       string        `json:"key,omitempty"`
	Provider  string        `json:"provider,omitempty"`
	Source    string        `json:"source,omitempty"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current timestamp.
func NewEvent(action Action) Event {
	return Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}

// Sink receives audit events. Log must not block on slow destinations
// longer than necessary; Flush forces buffered events out.
type Sink interface {
	Log(event Event)
	Flush() error
}

// Nop discards all events.
type Nop struct{}

func (Nop) Log(Event)    {}
func (Nop) Flush() error { return nil }

// Multi forwards every event to each sink in order.
type Multi []Sink

func (m Multi) Log(event Event) {
	for _, s := range m {
		s.Log(event)
	}
}

func (m Multi) Flush() error {
	var firstErr error
	for _, s := range m {
		if err := s.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
