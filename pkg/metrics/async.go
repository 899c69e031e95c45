package metrics

import (
	"sync"
	"sync/atomic"
)

// AsyncObserver moves event recording off the session goroutines. Events
// beyond the buffer are dropped and counted instead of blocking audio.
type AsyncObserver struct {
	inner   Observer
	ch      chan MetricsEvent
	dropped atomic.Int64
	drained chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = 256
	}
	if inner == nil {
		inner = NoopObserver{}
	}
	a := &AsyncObserver{
		inner:   inner,
		ch:      make(chan MetricsEvent, buffer),
		drained: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil {
		return
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64 {
	return a.dropped.Load()
}

// Close stops accepting events and waits until the buffered ones reach the
// inner observer. A Flusher inner observer is flushed afterwards.
func (a *AsyncObserver) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.ch)
	}
	a.mu.Unlock()
	<-a.drained
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (a *AsyncObserver) loop() {
	defer close(a.drained)
	for ev := range a.ch {
		a.inner.RecordEvent(ev)
	}
}
