package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/harunnryd/cryscope/pkg/logging"
	"github.com/harunnryd/cryscope/pkg/redact"
	"github.com/harunnryd/cryscope/pkg/transports"
)

const (
	DefaultURL   = "wss://dashscope.aliyuncs.com/api-ws/v1/realtime"
	DefaultModel = "qwen-omni-turbo-realtime"

	workspaceHeader = "X-DashScope-WorkSpace"
)

type Config struct {
	URL                string `mapstructure:"url"`
	Model              string `mapstructure:"model"`
	APIKey             string `mapstructure:"api_key"`
	Workspace          string `mapstructure:"workspace"`
	HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms"`
	CloseGraceMS       int    `mapstructure:"close_grace_ms"`
	WriteTimeoutMS     int    `mapstructure:"write_timeout_ms"`
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.URL) == "" {
		c.URL = DefaultURL
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.HandshakeTimeoutMS <= 0 {
		c.HandshakeTimeoutMS = 10000
	}
	if c.CloseGraceMS <= 0 {
		c.CloseGraceMS = 2000
	}
	if c.WriteTimeoutMS <= 0 {
		c.WriteTimeoutMS = 1000
	}
	return c
}

// Dialer opens realtime connections with bearer authentication.
type Dialer struct {
	cfg    Config
	dialer gws.Dialer
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Dialer {
	cfg = cfg.withDefaults()
	return &Dialer{
		cfg: cfg,
		dialer: gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: time.Duration(cfg.HandshakeTimeoutMS) * time.Millisecond,
			ReadBufferSize:   4096,
			WriteBufferSize:  16384,
		},
		logger: logging.NewComponentLogger(logger, "websocket_transport"),
	}
}

func (d *Dialer) Name() string { return "websocket" }

// Endpoint returns the dial URL with the model query parameter applied. A
// model already present in the configured URL is kept.
func (d *Dialer) Endpoint() string {
	u, err := url.Parse(d.cfg.URL)
	if err != nil {
		return d.cfg.URL
	}
	q := u.Query()
	if q.Get("model") == "" {
		q.Set("model", d.cfg.Model)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *Dialer) ReadyFields() map[string]any {
	return map[string]any{
		"endpoint":  d.Endpoint(),
		"workspace": d.cfg.Workspace,
		"api_key":   redact.Secret(d.cfg.APIKey),
	}
}

func (d *Dialer) header() http.Header {
	h := http.Header{}
	if d.cfg.APIKey != "" {
		h.Set("Authorization", "bearer "+d.cfg.APIKey)
	}
	if d.cfg.Workspace != "" {
		h.Set(workspaceHeader, d.cfg.Workspace)
	}
	return h
}

func (d *Dialer) Dial(ctx context.Context) (transports.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := d.Endpoint()
	ws, resp, err := d.dialer.DialContext(ctx, endpoint, d.header())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		derr := &transports.DialError{Endpoint: endpoint, Err: err}
		if resp != nil {
			derr.Status = resp.StatusCode
		}
		return nil, derr
	}
	d.logger.Debug("websocket_connected", slog.String("endpoint", endpoint))
	return newConn(ws, d.cfg, d.logger), nil
}

// Conn wraps one gorilla connection. Callbacks are delivered from a single
// read goroutine in wire order.
type Conn struct {
	ws           *gws.Conn
	writeTimeout time.Duration
	closeGrace   time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex
	started atomic.Bool
	closing atomic.Bool
	done    chan struct{}
}

func newConn(ws *gws.Conn, cfg Config, logger *slog.Logger) *Conn {
	return &Conn{
		ws:           ws,
		writeTimeout: time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		closeGrace:   time.Duration(cfg.CloseGraceMS) * time.Millisecond,
		logger:       logger,
		done:         make(chan struct{}),
	}
}

func (c *Conn) Start(h transports.Handler) {
	if h == nil || !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop(h)
}

func (c *Conn) readLoop(h transports.Handler) {
	defer close(c.done)
	if c.closing.Load() {
		h.OnTransportClosed()
		return
	}
	h.OnTransportOpen()
	for {
		mt, msg, err := c.ws.ReadMessage()
		if err != nil {
			_ = c.ws.Close()
			if c.closing.Load() || gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway) {
				c.logger.Debug("websocket_closed", slog.String("reason", redact.Text(err.Error())))
				h.OnTransportClosed()
				return
			}
			h.OnTransportError(err)
			return
		}
		if mt != gws.TextMessage {
			continue
		}
		h.OnTransportMessage(msg)
	}
}

func (c *Conn) Send(payload []byte) error {
	if c.closing.Load() {
		return transports.ErrClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(gws.TextMessage, payload)
}

// Close sends a close frame and lets the read loop observe the peer's
// acknowledgement. The socket is force-closed after the grace period.
func (c *Conn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
	err := c.ws.WriteControl(gws.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	if !c.started.Load() {
		return c.ws.Close()
	}
	if err != nil && !errors.Is(err, gws.ErrCloseSent) {
		c.logger.Debug("websocket_close_frame_failed", slog.String("error", redact.Text(err.Error())))
		return c.ws.Close()
	}
	go func() {
		timer := time.NewTimer(c.closeGrace)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.logger.Debug("websocket_close_grace_expired")
			_ = c.ws.Close()
		}
	}()
	return nil
}

// Done is closed once the read loop has delivered its terminal callback.
func (c *Conn) Done() <-chan struct{} { return c.done }
