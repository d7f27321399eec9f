package metrics

import "github.com/prometheus/client_golang/prometheus"

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(manager *Manager) {
		if namespace != "" {
			manager.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics.
func WithSubsystem(subsystem string) Option {
	return func(manager *Manager) {
		if subsystem != "" {
			manager.subsystem = subsystem
		}
	}
}

// WithHistogramBuckets sets the latency buckets in milliseconds.
func WithHistogramBuckets(buckets []float64) Option {
	return func(manager *Manager) {
		if len(buckets) > 0 {
			manager.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers metrics on the given registry instead of a private one.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(manager *Manager) {
		if registry != nil {
			manager.registry = registry
		}
	}
}
