package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type flushCounter struct {
	*MemoryObserver
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}

func TestAsyncObserverDrainsOnClose(t *testing.T) {
	inner := &flushCounter{MemoryObserver: NewMemoryObserver()}
	async := NewAsyncObserver(inner, 64)
	for i := 0; i < 10; i++ {
		async.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	}
	if err := async.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := inner.Count(EventFrameSent) + int(async.Dropped()); got != 10 {
		t.Fatalf("expected 10 delivered or dropped events, got %d", got)
	}
	if inner.flushes != 1 {
		t.Fatalf("expected inner flush after drain, got %d", inner.flushes)
	}
	async.RecordEvent(NewEvent(EventFrameSent, 1, nil))
	if err := async.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestJSONLObserverSortsTags(t *testing.T) {
	var buf bytes.Buffer
	obs := NewJSONLObserver(&buf)
	obs.RecordEvent(MetricsEvent{
		Name:   EventSessionState,
		Tags:   map[string]string{TagState: "STREAMING", TagPrevState: "HANDSHAKING", TagSessionID: "s1"},
		Fields: map[string]any{"frames": 3},
	})
	line := buf.String()
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, line)
	}
	if rec["name"] != EventSessionState || rec["state"] != "STREAMING" {
		t.Fatalf("unexpected record %v", rec)
	}
	if strings.Index(line, `"prev_state"`) > strings.Index(line, `"session_id"`) {
		t.Fatalf("expected sorted tag order: %s", line)
	}
}
