package cryscope

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/harunnryd/cryscope/pkg/frames"
	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/realtime"
	"github.com/harunnryd/cryscope/pkg/redact"
)

// LogSink logs every text update and error.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{log: logging.NewComponentLogger(logger, "result_sink")}
}

func (s *LogSink) OnText(text string) {
	s.log.Info("text_updated", slog.Int("chars", utf8.RuneCountInString(text)))
	s.log.Debug("text_snapshot", slog.String("text", text))
}

func (s *LogSink) OnError(message string) {
	s.log.Warn("session_error", slog.String("message", redact.Text(message)))
}

// WriterSink rewrites a single status line on w with the latest text.
// Errors are printed on their own line.
type WriterSink struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) OnText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == s.last {
		return
	}
	s.last = text
	_, _ = fmt.Fprintf(s.w, "\r\033[K%s", text)
}

func (s *WriterSink) OnError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != "" {
		_, _ = fmt.Fprintln(s.w)
	}
	_, _ = fmt.Fprintf(s.w, "error: %s\n", message)
}

// Last returns the most recent text written.
func (s *WriterSink) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// MultiSink fans updates out to several sinks in order.
type MultiSink []realtime.ResultSink

func (m MultiSink) OnText(text string) {
	for _, s := range m {
		if s != nil {
			s.OnText(text)
		}
	}
}

func (m MultiSink) OnError(message string) {
	for _, s := range m {
		if s != nil {
			s.OnError(message)
		}
	}
}

type frameRecord struct {
	Kind      frames.Kind       `json:"kind"`
	PTS       int64             `json:"pts"`
	SessionID string            `json:"session_id,omitempty"`
	Text      string            `json:"text,omitempty"`
	Name      string            `json:"name,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// NewFrameWriter returns an Options.OnFrame callback that writes each frame
// to w as one JSON line. Audio frames are skipped.
func NewFrameWriter(w io.Writer) func(frames.Frame) {
	var mu sync.Mutex
	enc := json.NewEncoder(w)
	return func(f frames.Frame) {
		meta := f.Meta()
		rec := frameRecord{Kind: f.Kind(), PTS: f.PTS(), SessionID: meta[frames.MetaSessionID]}
		delete(meta, frames.MetaSessionID)
		switch v := f.(type) {
		case frames.TextFrame:
			rec.Text = v.Text()
		case frames.SystemFrame:
			rec.Name = v.Name()
		default:
			return
		}
		if len(meta) > 0 {
			rec.Meta = meta
		}
		mu.Lock()
		_ = enc.Encode(rec)
		mu.Unlock()
	}
}

var (
	_ realtime.ResultSink = (*LogSink)(nil)
	_ realtime.ResultSink = (*WriterSink)(nil)
	_ realtime.ResultSink = MultiSink(nil)
)
