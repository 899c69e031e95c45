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
)

// UsageSummary is what a session consumed from the realtime service.
type UsageSummary struct {
	SessionID     string  `json:"session_id"`
	AudioSeconds  float64 `json:"audio_seconds"`
	FramesSent    int     `json:"frames_sent"`
	FramesDropped int     `json:"frames_dropped"`
	TextDeltas    int     `json:"text_deltas"`
	Errors        int     `json:"errors"`
	FinalState    string  `json:"final_state,omitempty"`
	RecordedAtUTC string  `json:"recorded_at_utc"`
}

// UsageObserver accumulates streamed audio per session and writes
// <session>.usage.json under dir on Close.
type UsageObserver struct {
	dir        string
	sampleRate int
	mu         sync.Mutex
	stats      map[string]*UsageSummary
}

func NewUsageObserver(dir string, sampleRate int) *UsageObserver {
	return &UsageObserver{dir: dir, sampleRate: sampleRate, stats: make(map[string]*UsageSummary)}
}

func (o *UsageObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagSessionID]
	if id == "" {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[id]
	if stat == nil {
		stat = &UsageSummary{SessionID: id}
		o.stats[id] = stat
	}
	switch ev.Name {
	case metrics.EventFrameSent:
		stat.FramesSent++
		if o.sampleRate > 0 {
			stat.AudioSeconds += ev.Value / float64(o.sampleRate)
		}
	case metrics.EventFrameDropped:
		stat.FramesDropped++
	case metrics.EventTextDelta:
		stat.TextDeltas++
	case metrics.EventSessionError:
		stat.Errors++
	case metrics.EventSessionState:
		stat.FinalState = ev.Tags[metrics.TagState]
	}
}

// Summary returns a copy of the running totals for a session.
func (o *UsageObserver) Summary(sessionID string) (UsageSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	stat := o.stats[sessionID]
	if stat == nil {
		return UsageSummary{}, false
	}
	return *stat, true
}

func (o *UsageObserver) Close() error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	var errOut error
	for id, stat := range o.stats {
		stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
		b, err := json.MarshalIndent(stat, "", "  ")
		if err != nil {
			errOut = errors.Join(errOut, err)
			continue
		}
		path := filepath.Join(o.dir, sanitizeID(id)+".usage.json")
		if err := os.WriteFile(path, b, 0o644); err != nil {
			errOut = errors.Join(errOut, err)
		}
	}
	return errOut
}

var _ metrics.Observer = (*UsageObserver)(nil)
