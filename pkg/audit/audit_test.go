package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewEventFillsIdentity(t *testing.T) {
	e := NewEvent(ActionResolve)
	if e.ID == "" {
		t.Error("event ID is empty")
	}
	if e.Timestamp.IsZero() {
		t.Error("event timestamp is zero")
	}
	if e.Action != ActionResolve {
		t.Errorf("action = %q, want %q", e.Action, ActionResolve)
	}

	e2 := NewEvent(ActionResolve)
	if e.ID == e2.ID {
		t.Error("two events share an ID")
	}
}

func TestFileSinkWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewFile(path)
	if err != nil {
		t.Fatalf("failed to open sink: %v", err)
	}

	first := NewEvent(ActionResolve)
	first.Key = "DB_PASSWORD"
	first.Provider = "exec"
	first.Success = true
	first.Duration = 42 * time.Millisecond
	sink.Log(first)

	second := NewEvent(ActionInject)
	second.Key = "API_KEY"
	second.Error = "not found"
	sink.Log(second)

	if err := sink.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen log: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("invalid JSON line: %v", err)
		}
		events = append(events, e)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Key != "DB_PASSWORD" || !events[0].Success {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Error != "not found" || events[1].Success {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestFileSinkAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	for range 2 {
		sink, err := NewFile(path)
		if err != nil {
			t.Fatalf("failed to open sink: %v", err)
		}
		sink.Log(NewEvent(ActionResolve))
		if err := sink.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("got %d lines after two sessions, want 2", lines)
	}
}

type recordingSink struct {
	events  []Event
	flushed int
}

func (r *recordingSink) Log(e Event)  { r.events = append(r.events, e) }
func (r *recordingSink) Flush() error { r.flushed++; return nil }

func TestMultiFansOut(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := Multi{a, b}

	m.Log(NewEvent(ActionResolve))
	if err := m.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events not fanned out: a=%d b=%d", len(a.events), len(b.events))
	}
	if a.flushed != 1 || b.flushed != 1 {
		t.Errorf("flush not fanned out: a=%d b=%d", a.flushed, b.flushed)
	}
}
