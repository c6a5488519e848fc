package sources

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/samvad-hq/samvad-feed-aggregator/pkg/httpclient"
)

// Factory maps source types to builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]Builder
	client   HTTPClient
}

// NewFactory returns a factory with optional pre-registered builders sharing client.
func NewFactory(client HTTPClient, builders map[string]Builder) *Factory {
	if client == nil {
		client = DefaultHTTPClient()
	}
	f := &Factory{
		builders: make(map[string]Builder),
		client:   client,
	}
	for typ, b := range builders {
		f.Register(typ, b)
	}
	return f
}

// Register associates a builder with a source type.
func (f *Factory) Register(typ string, builder Builder) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" || builder == nil {
		return
	}

	f.mu.Lock()
	f.builders[key] = builder
	f.mu.Unlock()
}

// Build creates the source for a definition based on its type.
func (f *Factory) Build(def Definition) (Source, error) {
	if f == nil {
		return nil, fmt.Errorf("source factory is nil")
	}
	if strings.TrimSpace(def.ID) == "" {
		return nil, fmt.Errorf("source id is empty")
	}

	f.mu.RLock()
	builder := f.builders[strings.ToLower(strings.TrimSpace(def.Type))]
	f.mu.RUnlock()

	if builder == nil {
		return nil, fmt.Errorf("no builder registered for source %q (type %q)", def.ID, def.Type)
	}
	return builder(def, f.client)
}

// DefaultHTTPClient returns a tuned client for feed sources.
func DefaultHTTPClient() HTTPClient {
	return httpclient.NewRestyClient(httpclient.Options{
		Timeout:   15 * time.Second,
		UserAgent: httpclient.DefaultUserAgent,
	})
}

// DefaultFactory wires up the known source types.
func DefaultFactory(client HTTPClient) *Factory {
	return NewFactory(client, map[string]Builder{
		TypeRSS:  NewRSSSource,
		TypeHTML: NewHTMLSource,
	})
}

// BuildAll instantiates sources for defs, preserving order.
func BuildAll(f *Factory, defs []Definition) ([]Source, error) {
	if f == nil || len(defs) == 0 {
		return nil, nil
	}

	out := make([]Source, 0, len(defs))
	for _, def := range defs {
		src, err := f.Build(def)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
