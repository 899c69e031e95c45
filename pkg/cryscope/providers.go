package cryscope

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/harunnryd/cryscope/pkg/capture"
	"github.com/harunnryd/cryscope/pkg/configutil"
	"github.com/harunnryd/cryscope/pkg/transports"
	"github.com/harunnryd/cryscope/pkg/transports/mock"
	"github.com/harunnryd/cryscope/pkg/transports/websocket"
)

// APIKeyEnv is consulted when transport.settings.api_key is blank.
const APIKeyEnv = "DASHSCOPE_API_KEY"

type mockTransportSettings struct {
	Script    []string `mapstructure:"script"`
	AutoOpen  *bool    `mapstructure:"auto_open"`
	AutoClose *bool    `mapstructure:"auto_close"`
	DialError string   `mapstructure:"dial_error"`
}

// DefaultProviders returns a registry with the built-in transports
// (websocket, mock) and capture sources (wav, tone).
func DefaultProviders() *ProviderRegistry {
	reg := NewProviderRegistry()
	reg.RegisterTransport("websocket", buildWebsocketTransport)
	reg.RegisterTransport("mock", buildMockTransport)
	reg.RegisterCapture("wav", buildWAVCapture)
	reg.RegisterCapture("tone", buildToneCapture)
	return reg
}

func buildWebsocketTransport(cfg Config, logger *slog.Logger) (transports.Dialer, error) {
	if err := validateSettings("transport.settings", cfg.Transport.Settings, websocket.Config{}); err != nil {
		return nil, err
	}
	var settings websocket.Config
	if err := configutil.DecodeSettings(cfg.Transport.Settings, &settings); err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.APIKey) == "" {
		settings.APIKey = os.Getenv(APIKeyEnv)
	}
	if err := configutil.RequireString(settings.APIKey, "transport.settings.api_key"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.Model) == "" {
		settings.Model = cfg.Realtime.Model
	}
	return websocket.New(settings, logger), nil
}

func buildMockTransport(cfg Config, _ *slog.Logger) (transports.Dialer, error) {
	if err := validateSettings("transport.settings", cfg.Transport.Settings, mockTransportSettings{}); err != nil {
		return nil, err
	}
	var settings mockTransportSettings
	if err := configutil.DecodeSettings(cfg.Transport.Settings, &settings); err != nil {
		return nil, err
	}
	opts := []mock.Option{
		mock.WithAutoOpen(configutil.BoolValue(settings.AutoOpen, true)),
		mock.WithAutoClose(configutil.BoolValue(settings.AutoClose, true)),
		mock.WithScript(settings.Script...),
	}
	if msg := strings.TrimSpace(settings.DialError); msg != "" {
		opts = append(opts, mock.WithDialError(errors.New(msg)))
	}
	return mock.NewDialer(opts...), nil
}

func buildWAVCapture(cfg Config, logger *slog.Logger) (capture.Source, error) {
	if err := validateSettings("capture.settings", cfg.Capture.Settings, capture.WAVConfig{}, "path"); err != nil {
		return nil, err
	}
	var settings capture.WAVConfig
	if err := configutil.DecodeSettings(cfg.Capture.Settings, &settings); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(settings.Path, "capture.settings.path"); err != nil {
		return nil, err
	}
	return capture.NewWAVSource(settings, logger), nil
}

func buildToneCapture(cfg Config, _ *slog.Logger) (capture.Source, error) {
	if err := validateSettings("capture.settings", cfg.Capture.Settings, capture.ToneConfig{}); err != nil {
		return nil, err
	}
	var settings capture.ToneConfig
	if err := configutil.DecodeSettings(cfg.Capture.Settings, &settings); err != nil {
		return nil, err
	}
	return capture.NewToneSource(settings), nil
}
