// Package plugins provides a registry of ledger sink plugins.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/ArionMiles/spesabot/pkg/api"
	"github.com/ArionMiles/spesabot/pkg/config"
)

// SinkPlugin constructs a ledger sink selected by LEDGER_SINK.
type SinkPlugin interface {
	// Name returns the plugin name (e.g., "postgres", "sheets").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the Google API scopes needed by this plugin.
	// httpClient is nil for plugins that return none.
	RequiredScopes() []string
	// NewSink creates a new sink from the application config.
	NewSink(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Sink, error)
}

// Registry manages the available sink plugins.
type Registry struct {
	sinks map[string]SinkPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]SinkPlugin),
	}
}

// Register registers a sink plugin.
func (r *Registry) Register(plugin SinkPlugin) error {
	name := plugin.Name()
	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("sink plugin %q already registered", name)
	}
	r.sinks[name] = plugin
	return nil
}

// Get returns a sink plugin by name.
func (r *Registry) Get(name string) (SinkPlugin, error) {
	plugin, exists := r.sinks[name]
	if !exists {
		return nil, fmt.Errorf("sink plugin %q not found", name)
	}
	return plugin, nil
}

// List returns all registered sink plugins ordered by name.
func (r *Registry) List() []SinkPlugin {
	plugins := make([]SinkPlugin, 0, len(r.sinks))
	for _, plugin := range r.sinks {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool { return plugins[i].Name() < plugins[j].Name() })
	return plugins
}

// Create creates a sink instance from the named plugin.
func (r *Registry) Create(ctx context.Context, name string, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (api.Sink, error) {
	plugin, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewSink(ctx, cfg, httpClient, logger)
}
