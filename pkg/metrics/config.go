package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "mediaflow" namespace for metrics.
	Namespace string

	// Labels are additional labels to add to all metrics.
	Labels prometheus.Labels
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: "mediaflow",
		Labels:    nil,
	}
}

// FromConfig returns the registry a component should record into, or nil
// when metrics are disabled.
func FromConfig(config Config) *Registry {
	if !config.Enabled {
		return nil
	}
	if config.Registry == nil || config.Registry == prometheus.DefaultRegisterer {
		if config.Namespace == "" || config.Namespace == DefaultConfig().Namespace {
			return DefaultRegistry
		}
	}
	return NewRegistryWithConfig(config)
}
