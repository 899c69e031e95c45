package observers

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/harunnryd/cryscope/pkg/metrics"
)

// LoggerObserver mirrors metric events into the debug log.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	if !o.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Float64("value", ev.Value),
	}
	keys := make([]string, 0, len(ev.Tags))
	for k := range ev.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, ev.Tags[k]))
	}
	o.log.LogAttrs(context.Background(), slog.LevelDebug, "metrics", attrs...)
}

// MultiObserver fans events out to every non-nil observer.
type MultiObserver struct {
	list []metrics.Observer
}

func NewMultiObserver(list ...metrics.Observer) *MultiObserver {
	return &MultiObserver{list: list}
}

func (m *MultiObserver) RecordEvent(ev metrics.MetricsEvent) {
	for _, obs := range m.list {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}

// Flush flushes every member that supports it.
func (m *MultiObserver) Flush() error {
	var errs error
	for _, obs := range m.list {
		if f, ok := obs.(metrics.Flusher); ok {
			errs = errors.Join(errs, f.Flush())
		}
	}
	return errs
}

var (
	_ metrics.Observer = (*LoggerObserver)(nil)
	_ metrics.Flusher  = (*MultiObserver)(nil)
)
