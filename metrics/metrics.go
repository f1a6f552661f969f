// Package metrics defines the recorder interface for service telemetry with
// Prometheus and no-op implementations.
package metrics

import "time"

// Recorder records verification outcomes and operation latencies.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}
