package ports

import "time"

// Metrics receives ingest instrumentation events. The shipped implementation
// exports them to Prometheus; tests pass NopMetrics.
type Metrics interface {
	ChunkReceived(payloadBytes int)
	AckSent()
	TrackStarted()
	TrackCompleted(outcome string, elapsed time.Duration)
	FramesDecoded(seconds float64)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) ChunkReceived(int) {}

func (NopMetrics) AckSent() {}

func (NopMetrics) TrackStarted() {}

func (NopMetrics) TrackCompleted(string, time.Duration) {}

func (NopMetrics) FramesDecoded(float64) {}
