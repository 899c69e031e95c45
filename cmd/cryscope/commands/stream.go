package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harunnryd/cryscope/pkg/cryscope"
	"github.com/harunnryd/cryscope/pkg/metrics"
	"github.com/harunnryd/cryscope/pkg/realtime"
	"github.com/harunnryd/cryscope/pkg/runner"
)

type streamOptions struct {
	wav      string
	tone     bool
	mock     bool
	loop     bool
	duration time.Duration
	jsonOut  bool
	banner   bool
	events   string
}

type resultRecord struct {
	Kind          string `json:"kind"`
	SessionID     string `json:"session_id"`
	Text          string `json:"text"`
	State         string `json:"state"`
	FramesSent    uint64 `json:"frames_sent"`
	FramesDropped uint64 `json:"frames_dropped"`
	DurationMS    int64  `json:"duration_ms"`
	Error         string `json:"error,omitempty"`
}

func newStreamCommand(root *rootOptions) *cobra.Command {
	opts := &streamOptions{}
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream audio to the realtime service and print the analysis",
		Long: `Open one realtime session, stream the configured capture source through it
and print the accumulated text as it grows.

The session is stopped when the source is exhausted, when --duration
elapses, or on SIGINT/SIGTERM.

Examples:
  # Analyse a WAV file (any rate; it is downmixed and resampled to 16 kHz)
  cryscope stream --wav cry.wav

  # Smoke test without credentials or audio
  cryscope stream --mock --tone

  # Loop a recording for 30 seconds, JSON lines on stdout
  cryscope stream --wav cry.wav --loop --duration 30s --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := root.load(cmd); err != nil {
				return err
			}
			return runStream(cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.wav, "wav", "", "WAV file to stream (sets capture.provider=wav)")
	f.BoolVar(&opts.tone, "tone", false, "stream a synthetic tone (sets capture.provider=tone)")
	f.BoolVar(&opts.mock, "mock", false, "use the offline mock transport")
	f.BoolVar(&opts.loop, "loop", false, "loop the WAV file until stopped")
	f.DurationVar(&opts.duration, "duration", 0, "stop streaming after this long (0 = until the source ends)")
	f.BoolVar(&opts.jsonOut, "json", false, "print frames and the final result as JSON lines")
	f.BoolVar(&opts.banner, "banner", true, "print the startup banner to stderr")
	f.StringVar(&opts.events, "events", "", "append session metric events as JSON lines to this file")
	return cmd
}

func runStream(cmd *cobra.Command, root *rootOptions, opts *streamOptions) error {
	cfg := applyStreamFlags(root.cfg, opts)
	out := cmd.OutOrStdout()
	logger := root.logger

	var extra []metrics.Observer
	var msrv *metricsServer
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		msrv = newMetricsServer(addr, logger)
		extra = append(extra, msrv.observer)
		msrv.Start()
	}
	var eventsFile *os.File
	if opts.events != "" {
		f, err := os.OpenFile(opts.events, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open events file: %w", err)
		}
		eventsFile = f
		extra = append(extra, metrics.NewJSONLObserver(f))
	}

	engineOpts := cryscope.Options{
		Config:    cfg,
		Providers: cryscope.DefaultProviders(),
		Logger:    logger,
		Observers: extra,
	}
	var writer *cryscope.WriterSink
	if opts.jsonOut {
		engineOpts.Sink = cryscope.NewLogSink(logger)
		engineOpts.OnFrame = cryscope.NewFrameWriter(out)
	} else {
		writer = cryscope.NewWriterSink(out)
		engineOpts.Sink = cryscope.MultiSink{writer, cryscope.NewLogSink(logger)}
	}
	engine := cryscope.NewEngine(engineOpts)

	var (
		resMu  sync.Mutex
		result cryscope.Result
	)
	task := func(ctx context.Context) error {
		if opts.duration > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, opts.duration)
			defer cancel()
		}
		res, err := engine.Run(ctx)
		resMu.Lock()
		result = res
		resMu.Unlock()
		return err
	}
	var bannerOut io.Writer
	if opts.banner && !opts.jsonOut {
		bannerOut = cmd.ErrOrStderr()
	}
	lr := runner.NewLifecycleRunner(task, runner.Options{
		Drainer:      engine,
		DrainTimeout: cfg.Realtime.StopTimeout() + time.Second,
		Banner:       bannerOut,
		Hooks: runner.Hooks{
			OnStart: func() { logger.Info("stream_started", "transport", cfg.Transport.Provider, "capture", cfg.Capture.Provider) },
			OnStop:  func() { logger.Info("stream_stopped") },
		},
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runErr := lr.Run(ctx)

	if err := engine.Close(); err != nil {
		logger.Warn("engine_close_failed", "error", err)
	}
	if eventsFile != nil {
		if err := eventsFile.Close(); err != nil {
			logger.Warn("events_file_close_failed", "error", err)
		}
	}
	if msrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = msrv.Shutdown(shutdownCtx)
		cancel()
	}

	resMu.Lock()
	defer resMu.Unlock()
	if opts.jsonOut {
		rec := resultRecord{
			Kind:          "result",
			SessionID:     result.SessionID,
			Text:          result.Text,
			State:         result.State.String(),
			FramesSent:    result.FramesSent,
			FramesDropped: result.FramesDropped,
			DurationMS:    result.Duration.Milliseconds(),
		}
		if runErr != nil {
			rec.Error = realtime.Message(runErr)
		}
		if err := json.NewEncoder(out).Encode(rec); err != nil {
			return err
		}
	} else if writer.Last() != "" {
		fmt.Fprintln(out)
	}
	if runErr != nil {
		return fmt.Errorf("stream: %w", runErr)
	}
	return nil
}

// applyStreamFlags layers command-line shortcuts over the loaded config.
func applyStreamFlags(cfg cryscope.Config, opts *streamOptions) cryscope.Config {
	if opts.mock {
		cfg.Transport = cryscope.ProviderConfig{
			Provider: "mock",
			Settings: map[string]any{"script": mockScript},
		}
	}
	switch {
	case opts.wav != "":
		settings := copySettings(cfg.Capture.Settings, cfg.Capture.Provider == "wav")
		settings["path"] = opts.wav
		if opts.loop {
			settings["loop"] = true
		}
		cfg.Capture = cryscope.ProviderConfig{Provider: "wav", Settings: settings}
	case opts.tone:
		cfg.Capture = cryscope.ProviderConfig{
			Provider: "tone",
			Settings: copySettings(cfg.Capture.Settings, cfg.Capture.Provider == "tone"),
		}
	}
	return cfg
}

func copySettings(in map[string]any, keep bool) map[string]any {
	out := make(map[string]any, len(in)+2)
	if keep {
		for k, v := range in {
			out[k] = v
		}
	}
	return out
}

// mockScript is what the offline transport answers with.
var mockScript = []string{
	`{"type":"session.created","session":{"id":"sess_mock"}}`,
	`{"type":"response.text.delta","delta":"Cry detected. "}`,
	`{"type":"response.text.delta","delta":"Likely cause: hunger."}`,
}
