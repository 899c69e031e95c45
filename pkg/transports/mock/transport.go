package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/harunnryd/cryscope/pkg/transports"
)

type Option func(*Dialer)

// WithAutoOpen makes Start emit OnTransportOpen immediately.
func WithAutoOpen(v bool) Option {
	return func(d *Dialer) { d.autoOpen = v }
}

// WithAutoClose makes Close acknowledge with OnTransportClosed immediately.
func WithAutoClose(v bool) Option {
	return func(d *Dialer) { d.autoClose = v }
}

// WithDialError makes every Dial fail with err.
func WithDialError(err error) Option {
	return func(d *Dialer) { d.dialErr = err }
}

// WithScript delivers the given inbound messages right after an automatic open.
func WithScript(messages ...string) Option {
	return func(d *Dialer) { d.script = append(d.script, messages...) }
}

// Dialer is an in-memory dialer for tests and offline runs. It keeps every
// connection it hands out so tests can drive and inspect them.
type Dialer struct {
	mu        sync.Mutex
	autoOpen  bool
	autoClose bool
	dialErr   error
	script    []string
	dials     int
	conns     []*Conn
}

func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dialer) Name() string { return "mock" }

func (d *Dialer) Dial(ctx context.Context) (transports.Conn, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := &Conn{
		autoOpen:  d.autoOpen,
		autoClose: d.autoClose,
		script:    append([]string(nil), d.script...),
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recent connection, or nil.
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Conn is a spy connection. Callbacks run synchronously on the caller's
// goroutine.
type Conn struct {
	mu         sync.Mutex
	handler    transports.Handler
	autoOpen   bool
	autoClose  bool
	script     []string
	sent       [][]byte
	sendErr    error
	closeCalls int
	terminated bool
	gate       chan struct{}
	entered    chan struct{}
}

func (c *Conn) Start(h transports.Handler) {
	c.mu.Lock()
	if c.handler != nil || h == nil {
		c.mu.Unlock()
		return
	}
	c.handler = h
	autoOpen := c.autoOpen
	script := c.script
	closedEarly := c.closeCalls > 0 && c.autoClose && !c.terminated
	if closedEarly {
		c.terminated = true
	}
	c.mu.Unlock()

	if closedEarly {
		h.OnTransportClosed()
		return
	}
	if !autoOpen {
		return
	}
	h.OnTransportOpen()
	for _, msg := range script {
		if c.isTerminated() {
			return
		}
		h.OnTransportMessage([]byte(msg))
	}
}

func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	gate, entered := c.gate, c.entered
	c.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closeCalls > 0 || c.terminated {
		return transports.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closeCalls++
	h := c.handler
	ack := c.autoClose && !c.terminated && h != nil
	if ack {
		c.terminated = true
	}
	c.mu.Unlock()
	if ack {
		h.OnTransportClosed()
	}
	return nil
}

// Open emits OnTransportOpen.
func (c *Conn) Open() {
	if h := c.activeHandler(); h != nil {
		h.OnTransportOpen()
	}
}

// Deliver injects one inbound message.
func (c *Conn) Deliver(payload string) {
	if h := c.activeHandler(); h != nil {
		h.OnTransportMessage([]byte(payload))
	}
}

// DeliverJSON marshals v and injects it as an inbound message.
func (c *Conn) DeliverJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Deliver(string(b))
	return nil
}

// Fail terminates the connection with a transport error.
func (c *Conn) Fail(err error) {
	if h := c.terminate(); h != nil {
		h.OnTransportError(err)
	}
}

// Drop terminates the connection as if the peer closed it.
func (c *Conn) Drop() {
	if h := c.terminate(); h != nil {
		h.OnTransportClosed()
	}
}

// SetSendError makes subsequent Send calls fail with err.
// BlockSends makes Send wait until release is called. entered receives a
// value each time a Send starts waiting.
func (c *Conn) BlockSends() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	c.gate, c.entered = gate, ch
	c.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			c.gate, c.entered = nil, nil
			c.mu.Unlock()
			close(gate)
		})
	}
}

func (c *Conn) SetSendError(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Sent returns copies of every outbound message in order.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	for i, b := range c.sent {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// SentTypes returns the "type" field of every outbound message in order.
func (c *Conn) SentTypes() []string {
	sent := c.Sent()
	out := make([]string, 0, len(sent))
	for _, b := range sent {
		var env struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(b, &env)
		out = append(out, env.Type)
	}
	return out
}

func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

func (c *Conn) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler != nil
}

func (c *Conn) activeHandler() transports.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated {
		return nil
	}
	return c.handler
}

func (c *Conn) terminate() transports.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminated || c.handler == nil {
		return nil
	}
	c.terminated = true
	return c.handler
}

func (c *Conn) isTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}
