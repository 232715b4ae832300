// Package metric provides Prometheus metrics for ledgersnap.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, recording helpers and HTTP handler
//   - collector.go: Scrape-time collector for ledger store record counts
//
// Metrics are exposed at /metrics by the follow command.
package metric
