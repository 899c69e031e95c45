package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/cryscope/pkg/metrics"
	"github.com/harunnryd/cryscope/pkg/redact"
)

// TimelineObserver writes one JSONL trace per session under dir. frame_sent
// is left out unless audio frames are requested, since a minute of audio
// produces hundreds of them.
type TimelineObserver struct {
	dir        string
	withFrames bool
	mu         sync.Mutex
	files      map[string]*os.File
}

func NewTimelineObserver(dir string, withFrames bool) *TimelineObserver {
	return &TimelineObserver{dir: dir, withFrames: withFrames, files: make(map[string]*os.File)}
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagSessionID]
	if id == "" || strings.TrimSpace(o.dir) == "" {
		return
	}
	if ev.Name == metrics.EventFrameSent && !o.withFrames {
		return
	}
	entry := timelineEvent{
		Time:      ev.Time.UTC(),
		Event:     ev.Name,
		SessionID: id,
		Value:     ev.Value,
		Tags:      sanitizeTags(ev.Tags),
		Fields:    sanitizeFields(ev.Fields),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	f := o.fileFor(id)
	if f == nil {
		return
	}
	o.mu.Lock()
	_, _ = f.Write(append(line, '\n'))
	o.mu.Unlock()

	if ev.Name == metrics.EventSessionState && ev.Tags[metrics.TagState] == "CLOSED" {
		o.closeFile(id)
	}
}

// Path returns the trace file of a session.
func (o *TimelineObserver) Path(sessionID string) string {
	return filepath.Join(o.dir, sanitizeID(sessionID)+".jsonl")
}

func (o *TimelineObserver) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		err = errors.Join(err, f.Sync())
	}
	return err
}

// Close closes any open files.
func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var err error
	for _, f := range o.files {
		if cerr := f.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	o.files = make(map[string]*os.File)
	return err
}

type timelineEvent struct {
	Time      time.Time         `json:"time"`
	Event     string            `json:"event"`
	SessionID string            `json:"session_id"`
	Value     float64           `json:"value,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	Fields    map[string]any    `json:"fields,omitempty"`
}

func (o *TimelineObserver) fileFor(id string) *os.File {
	safe := sanitizeID(id)
	if safe == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.files[safe]; f != nil {
		return f
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(o.dir, safe+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}
	o.files[safe] = f
	return f
}

func (o *TimelineObserver) closeFile(id string) {
	safe := sanitizeID(id)
	o.mu.Lock()
	defer o.mu.Unlock()
	if f := o.files[safe]; f != nil {
		_ = f.Close()
		delete(o.files, safe)
	}
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}

func sanitizeTags(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if k == metrics.TagSessionID {
			continue
		}
		out[k] = redact.Text(v)
	}
	return out
}

func sanitizeFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			out[k] = redact.Text(s)
			continue
		}
		out[k] = v
	}
	return out
}

var (
	_ metrics.Observer = (*TimelineObserver)(nil)
	_ metrics.Flusher  = (*TimelineObserver)(nil)
)
