package cryscope

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/harunnryd/cryscope/pkg/capture"
	"github.com/harunnryd/cryscope/pkg/configutil"
	"github.com/harunnryd/cryscope/pkg/errorsx"
	"github.com/harunnryd/cryscope/pkg/transports"
)

type TransportFactory func(cfg Config, logger *slog.Logger) (transports.Dialer, error)
type CaptureFactory func(cfg Config, logger *slog.Logger) (capture.Source, error)

type ProviderRegistry struct {
	mu         sync.RWMutex
	transports map[string]TransportFactory
	captures   map[string]CaptureFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		transports: make(map[string]TransportFactory),
		captures:   make(map[string]CaptureFactory),
	}
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.mu.Lock()
	r.transports[providerKey(name)] = factory
	r.mu.Unlock()
}

func (r *ProviderRegistry) RegisterCapture(name string, factory CaptureFactory) {
	r.mu.Lock()
	r.captures[providerKey(name)] = factory
	r.mu.Unlock()
}

func (r *ProviderRegistry) BuildTransport(cfg Config, logger *slog.Logger) (transports.Dialer, error) {
	r.mu.RLock()
	fn := r.transports[providerKey(cfg.Transport.Provider)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, errorsx.Errorf(errorsx.ReasonConfigInvalid, "transport provider not registered: %s", cfg.Transport.Provider)
	}
	return fn(cfg, logger)
}

func (r *ProviderRegistry) BuildCapture(cfg Config, logger *slog.Logger) (capture.Source, error) {
	r.mu.RLock()
	fn := r.captures[providerKey(cfg.Capture.Provider)]
	r.mu.RUnlock()
	if fn == nil {
		return nil, errorsx.Errorf(errorsx.ReasonConfigInvalid, "capture provider not registered: %s", cfg.Capture.Provider)
	}
	return fn(cfg, logger)
}

// Names lists the registered transport and capture providers.
func (r *ProviderRegistry) Names() (transportNames, captureNames []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for k := range r.transports {
		transportNames = append(transportNames, k)
	}
	for k := range r.captures {
		captureNames = append(captureNames, k)
	}
	sort.Strings(transportNames)
	sort.Strings(captureNames)
	return transportNames, captureNames
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func validateSettings(path string, input map[string]any, settings any, required ...string) error {
	if err := configutil.ValidateSettings(input, configutil.SchemaFor(settings, required...)); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
