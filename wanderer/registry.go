package wanderer

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Registration holds the constructors one transport model provides. A nil
// constructor means the model does not serve that role.
type Registration struct {
	Source  func(ctx context.Context, attrs Attributes, logger golog.Logger) (ScanSource, error)
	Command func(ctx context.Context, attrs Attributes, logger golog.Logger) (CommandSink, error)
	Preview func(ctx context.Context, attrs Attributes, logger golog.Logger) (PreviewSink, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Registration{}
)

// RegisterTransport makes a transport model buildable by name. Transport
// packages call this from init; registering a name twice panics.
func RegisterTransport(model string, reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if model == "" {
		panic("transport model name is required")
	}
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("transport model %q already registered", model))
	}
	registry[model] = reg
}

// RegisteredTransports returns the registered model names.
func RegisteredTransports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func lookupTransport(model string) (Registration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registry[model]
	return reg, ok
}

// BuildSource constructs the scan source a transport config names.
func BuildSource(ctx context.Context, cfg *TransportConfig, logger golog.Logger) (ScanSource, error) {
	if cfg == nil {
		return nil, errors.New("source config is required")
	}
	reg, ok := lookupTransport(cfg.Model)
	if !ok {
		return nil, errors.Errorf("unknown transport model %q", cfg.Model)
	}
	if reg.Source == nil {
		return nil, errors.Errorf("transport model %q provides no scan source", cfg.Model)
	}
	return reg.Source(ctx, cfg.Attributes, logger)
}

// BuildCommandSink constructs the command sink a transport config names.
func BuildCommandSink(ctx context.Context, cfg *TransportConfig, logger golog.Logger) (CommandSink, error) {
	if cfg == nil {
		return nil, errors.New("command config is required")
	}
	reg, ok := lookupTransport(cfg.Model)
	if !ok {
		return nil, errors.Errorf("unknown transport model %q", cfg.Model)
	}
	if reg.Command == nil {
		return nil, errors.Errorf("transport model %q provides no command sink", cfg.Model)
	}
	return reg.Command(ctx, cfg.Attributes, logger)
}

// BuildPreviewSink constructs the preview sink a transport config names.
func BuildPreviewSink(ctx context.Context, cfg *TransportConfig, logger golog.Logger) (PreviewSink, error) {
	if cfg == nil {
		return nil, errors.New("preview config is required")
	}
	reg, ok := lookupTransport(cfg.Model)
	if !ok {
		return nil, errors.Errorf("unknown transport model %q", cfg.Model)
	}
	if reg.Preview == nil {
		return nil, errors.Errorf("transport model %q provides no preview sink", cfg.Model)
	}
	return reg.Preview(ctx, cfg.Attributes, logger)
}

// DecodeAttributes decodes a free-form attribute map into a transport's typed
// config through its json tags.
func DecodeAttributes(attrs Attributes, out interface{}) error {
	if attrs == nil {
		attrs = Attributes{}
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(attrs))
}
