package cryscope

import (
	"fmt"
	"strings"
	"time"

	"github.com/harunnryd/cryscope/pkg/configutil"
	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/realtime"
	"github.com/harunnryd/cryscope/pkg/transports/websocket"
	"github.com/spf13/viper"
)

type Config struct {
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Realtime      RealtimeConfig      `mapstructure:"realtime"`
	Transport     ProviderConfig      `mapstructure:"transport"`
	Capture       ProviderConfig      `mapstructure:"capture"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

// ProviderConfig selects a registered provider by name. Settings are decoded
// by the provider's factory.
type ProviderConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type RealtimeConfig struct {
	Model              string `mapstructure:"model"`
	TranscriptionModel string `mapstructure:"transcription_model"`
	ReadyTimeoutMS     int    `mapstructure:"ready_timeout_ms"`
	StopTimeoutMS      int    `mapstructure:"stop_timeout_ms"`
	DialRetries        int    `mapstructure:"dial_retries"`
	DialBackoffMS      int    `mapstructure:"dial_backoff_ms"`
	LingerMS           int    `mapstructure:"linger_ms"`
	LingerQuietMS      int    `mapstructure:"linger_quiet_ms"`
}

func (c RealtimeConfig) ReadyTimeout() time.Duration {
	return time.Duration(c.ReadyTimeoutMS) * time.Millisecond
}

func (c RealtimeConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

func (c RealtimeConfig) DialBackoff() time.Duration {
	return time.Duration(c.DialBackoffMS) * time.Millisecond
}

// Linger bounds how long a session stays open for replies after capture ends.
func (c RealtimeConfig) Linger() time.Duration {
	return time.Duration(c.LingerMS) * time.Millisecond
}

// LingerQuiet ends the linger early once replies have stopped for this long.
func (c RealtimeConfig) LingerQuiet() time.Duration {
	return time.Duration(c.LingerQuietMS) * time.Millisecond
}

type ObservabilityConfig struct {
	ArtifactsDir       string  `mapstructure:"artifacts_dir"`
	RetentionDays      int     `mapstructure:"retention_days"`
	MetricsAddr        string  `mapstructure:"metrics_addr"`
	TimelineFrames     bool    `mapstructure:"timeline_frames"`
	AsyncBuffer        int     `mapstructure:"async_buffer"`
	LogFrameSampleRate float64 `mapstructure:"log_frame_sample_rate"`
}

type PrivacyConfig struct {
	RedactSecrets bool `mapstructure:"redact_secrets"`
}

// LoadConfig reads the YAML file at path on top of the defaults. An empty
// path yields the defaults alone.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errorsx.Wrap(fmt.Errorf("read config: %w", err), errorsx.ReasonConfigInvalid)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errorsx.Wrap(fmt.Errorf("unmarshal: %w", err), errorsx.ReasonConfigInvalid)
	}
	configutil.ExpandEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns the configuration LoadConfig produces without a file.
func DefaultConfig() Config {
	cfg, err := LoadConfig("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("realtime.model", websocket.DefaultModel)
	v.SetDefault("realtime.transcription_model", realtime.DefaultTranscriptModel)
	v.SetDefault("realtime.ready_timeout_ms", 10000)
	v.SetDefault("realtime.stop_timeout_ms", 3000)
	v.SetDefault("realtime.dial_retries", 2)
	v.SetDefault("realtime.dial_backoff_ms", 250)
	v.SetDefault("realtime.linger_ms", 8000)
	v.SetDefault("realtime.linger_quiet_ms", 1500)
	v.SetDefault("transport.provider", "websocket")
	v.SetDefault("capture.provider", "wav")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 7)
	v.SetDefault("observability.metrics_addr", "")
	v.SetDefault("observability.timeline_frames", false)
	v.SetDefault("observability.async_buffer", 2048)
	v.SetDefault("observability.log_frame_sample_rate", 0.05)
	v.SetDefault("privacy.redact_secrets", true)
}

func (c *Config) Validate() error {
	if err := configutil.RequireString(c.Transport.Provider, "transport.provider"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Capture.Provider, "capture.provider"); err != nil {
		return err
	}
	if err := configutil.RequireString(c.Realtime.Model, "realtime.model"); err != nil {
		return err
	}
	if err := configutil.RequirePositive(c.Realtime.ReadyTimeoutMS, "realtime.ready_timeout_ms"); err != nil {
		return err
	}
	if err := configutil.RequirePositive(c.Realtime.StopTimeoutMS, "realtime.stop_timeout_ms"); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "log_format must be text or json, got %q", c.LogFormat)
	}
	if c.Realtime.DialRetries < 0 || c.Realtime.DialBackoffMS < 0 {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "realtime.dial_retries and realtime.dial_backoff_ms must not be negative")
	}
	if c.Realtime.LingerMS < 0 || c.Realtime.LingerQuietMS < 0 {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "realtime.linger_ms and realtime.linger_quiet_ms must not be negative")
	}
	if c.Observability.RetentionDays < 0 {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "observability.retention_days must not be negative")
	}
	if r := c.Observability.LogFrameSampleRate; r < 0 || r > 1 {
		return errorsx.Errorf(errorsx.ReasonConfigInvalid, "observability.log_frame_sample_rate must be within [0, 1], got %v", r)
	}
	return nil
}
