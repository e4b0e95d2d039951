// Package metrics defines the recorder contract used by the payment gate
// and provides Prometheus and no-op implementations.
package metrics

import "time"

// Recorder counts gate events and observes operation latency.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything. It is the default when no recorder is
// configured.
type NoopRecorder struct{}

// NewNoopRecorder returns a recorder that discards all observations.
func NewNoopRecorder() Recorder { return NoopRecorder{} }

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
