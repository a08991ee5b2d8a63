package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// IngestCollector exports the ingestion pipeline's counters to Prometheus.
// It implements ports.Metrics.
type IngestCollector struct {
	chunksReceived prometheus.Counter
	chunkBytes     prometheus.Counter
	acksSent       prometheus.Counter

	tracksInFlight prometheus.Gauge
	tracksDone     *prometheus.CounterVec

	decodedSeconds prometheus.Counter
	loadDuration   prometheus.Histogram
}

func NewIngestCollector() *IngestCollector {
	return &IngestCollector{
		chunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stemfetch_chunks_received_total",
			Help: "Total number of chunk frames received across all tracks",
		}),

		chunkBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stemfetch_chunk_bytes_total",
			Help: "Total chunk payload bytes received",
		}),

		acksSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stemfetch_acks_sent_total",
			Help: "Total number of chunk acknowledgements sent",
		}),

		tracksInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stemfetch_tracks_in_flight",
			Help: "Number of track loads currently running",
		}),

		tracksDone: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stemfetch_tracks_completed_total",
			Help: "Completed track loads by outcome",
		}, []string{"outcome"}),

		decodedSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stemfetch_decoded_audio_seconds_total",
			Help: "Total seconds of audio decoded across all tracks",
		}),

		loadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stemfetch_track_load_duration_seconds",
			Help:    "Wall-clock duration of track loads",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
	}
}

func (c *IngestCollector) ChunkReceived(bytes int) {
	c.chunksReceived.Inc()
	c.chunkBytes.Add(float64(bytes))
}

func (c *IngestCollector) AckSent() {
	c.acksSent.Inc()
}

func (c *IngestCollector) TrackStarted() {
	c.tracksInFlight.Inc()
}

func (c *IngestCollector) TrackCompleted(outcome string, elapsed time.Duration) {
	c.tracksInFlight.Dec()
	c.tracksDone.WithLabelValues(outcome).Inc()
	c.loadDuration.Observe(elapsed.Seconds())
}

func (c *IngestCollector) FramesDecoded(seconds float64) {
	c.decodedSeconds.Add(seconds)
}
