package metric

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CountSource reports the number of stored records.
type CountSource interface {
	Counts(ctx context.Context) (receivers, senders uint64, err error)
}

// Collector exposes stored record counts, read at scrape time.
type Collector struct {
	source  CountSource
	timeout time.Duration

	records *prometheus.Desc
	up      *prometheus.Desc
}

// NewCollector creates a collector reading counts from source.
func NewCollector(source CountSource) *Collector {
	return &Collector{
		source:  source,
		timeout: 5 * time.Second,
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "records"),
			"Records held in the ledger store by kind",
			[]string{"kind"}, nil,
		),
		up: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "store", "up"),
			"Whether the last ledger store read succeeded",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	receivers, senders, err := c.source.Counts(ctx)
	if err != nil {
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(receivers), "receiver")
	ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(senders), "sender")
}
