package metric

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledgersnap"

// Registry holds all application metrics.
//
// The recording methods are no-ops on a nil *Registry.
type Registry struct {
	registry *prometheus.Registry

	// Pull metrics
	RoundsTotal   *prometheus.CounterVec
	RoundDuration *prometheus.HistogramVec
	RecordsTotal  *prometheus.CounterVec

	// Checkpoint metrics
	CheckpointSenderIndex prometheus.Gauge
	CheckpointReceivers   prometheus.Gauge

	// Fetch metrics
	FetchChunksTotal   *prometheus.CounterVec
	FetchKeysTotal     prometheus.Counter
	FetchChunkDuration prometheus.Histogram
	FetchBatchSize     prometheus.Gauge

	// Snapshot metrics
	SnapshotEntriesTotal *prometheus.CounterVec
	SnapshotWriteTime    prometheus.Histogram
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus all ledgersnap metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		RoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pull",
			Name:      "rounds_total",
			Help:      "Ledger diff rounds by mode and result",
		}, []string{"mode", "result"}),
		RoundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pull",
			Name:      "round_duration_seconds",
			Help:      "Duration of one ledger diff round",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"mode"}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pull",
			Name:      "records_total",
			Help:      "Decoded ledger records by kind",
		}, []string{"kind"}),
		CheckpointSenderIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "sender_index",
			Help:      "Sender index of the last advanced checkpoint",
		}),
		CheckpointReceivers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "checkpoint",
			Name:      "receivers",
			Help:      "Sum of per-shard receiver indices of the last advanced checkpoint",
		}),
		FetchChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "chunks_total",
			Help:      "Storage query chunks by result",
		}, []string{"result"}),
		FetchKeysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "keys_total",
			Help:      "Storage keys successfully fetched",
		}),
		FetchChunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "chunk_duration_seconds",
			Help:      "Duration of one storage query chunk",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		FetchBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "batch_size",
			Help:      "Current storage query batch size",
		}),
		SnapshotEntriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "entries_total",
			Help:      "Snapshot entries written by key group",
		}, []string{"group"}),
		SnapshotWriteTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "write_duration_seconds",
			Help:      "Duration of writing one snapshot file",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		r.RoundsTotal,
		r.RoundDuration,
		r.RecordsTotal,
		r.CheckpointSenderIndex,
		r.CheckpointReceivers,
		r.FetchChunksTotal,
		r.FetchKeysTotal,
		r.FetchChunkDuration,
		r.FetchBatchSize,
		r.SnapshotEntriesTotal,
		r.SnapshotWriteTime,
	)

	return r
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// MustRegister registers extra collectors.
func (r *Registry) MustRegister(cs ...prometheus.Collector) {
	if r == nil {
		return
	}
	r.registry.MustRegister(cs...)
}

// ObserveRound records one pull round.
func (r *Registry) ObserveRound(mode string, elapsed time.Duration, receivers, senders int, err error) {
	if r == nil {
		return
	}
	r.RoundsTotal.WithLabelValues(mode, result(err)).Inc()
	r.RoundDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if err == nil {
		r.RecordsTotal.WithLabelValues("receiver").Add(float64(receivers))
		r.RecordsTotal.WithLabelValues("sender").Add(float64(senders))
	}
}

// SetCheckpoint records checkpoint progress.
func (r *Registry) SetCheckpoint(senderIndex, receivers uint64) {
	if r == nil {
		return
	}
	r.CheckpointSenderIndex.Set(float64(senderIndex))
	r.CheckpointReceivers.Set(float64(receivers))
}

// ObserveChunk records one storage query chunk.
func (r *Registry) ObserveChunk(keys int, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.FetchChunksTotal.WithLabelValues(result(err)).Inc()
	r.FetchChunkDuration.Observe(elapsed.Seconds())
	if err == nil {
		r.FetchKeysTotal.Add(float64(keys))
	}
}

// SetBatchSize records the current fetch batch size.
func (r *Registry) SetBatchSize(n int) {
	if r == nil {
		return
	}
	r.FetchBatchSize.Set(float64(n))
}

// ObserveSnapshot records one written snapshot file.
func (r *Registry) ObserveSnapshot(group string, entries int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.SnapshotEntriesTotal.WithLabelValues(group).Add(float64(entries))
	r.SnapshotWriteTime.Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
