package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrDrainTimeout = errors.New("drain timeout")
)

// Options configures a LifecycleRunner. Banner receives the startup banner;
// nil disables it.
type Options struct {
	Drainer      Drainer
	Hooks        Hooks
	DrainTimeout time.Duration
	Banner       io.Writer
}

// LifecycleRunner runs a task until it returns or the context is cancelled,
// then drains with a bounded timeout.
type LifecycleRunner struct {
	state    int32
	task     Task
	opts     Options
	mu       sync.Mutex
	cancel   context.CancelFunc
	onceStop sync.Once
	stopErr  error
	taskDone chan struct{}
	taskErr  error
}

func NewLifecycleRunner(task Task, opts Options) *LifecycleRunner {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 10 * time.Second
	}
	return &LifecycleRunner{
		state:    int32(StateNew),
		task:     task,
		opts:     opts,
		taskDone: make(chan struct{}),
	}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrInvalidState
	}
	PrintBanner(r.opts.Banner)
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	if r.opts.Hooks.OnStart != nil {
		r.opts.Hooks.OnStart()
	}
	r.setState(StateRunning)
	go func() {
		defer close(r.taskDone)
		if r.task != nil {
			r.taskErr = r.task(runCtx)
			return
		}
		<-runCtx.Done()
	}()

	select {
	case <-r.taskDone:
	case <-runCtx.Done():
	}
	cancel()
	stopErr := r.stop()
	select {
	case <-r.taskDone:
		if r.taskErr != nil {
			return r.taskErr
		}
	default:
	}
	return stopErr
}

// Stop cancels the task and drains. It is safe to call before or during Run.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		r.setState(StateStopped)
		return nil
	}
	cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		deadline := time.NewTimer(r.opts.DrainTimeout)
		defer deadline.Stop()
		if r.opts.Drainer != nil {
			done := make(chan struct{})
			go func() {
				_ = r.opts.Drainer.Drain()
				close(done)
			}()
			select {
			case <-done:
			case <-deadline.C:
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.stopErr == nil && r.task != nil {
			select {
			case <-r.taskDone:
			case <-deadline.C:
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.opts.Hooks.OnStop != nil {
			r.opts.Hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
