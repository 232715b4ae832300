// Package httpserver serves the operational endpoints of a long-running
// ledgersnap process: Prometheus metrics at /metrics and the sync health
// of the follow loop at /healthz.
//
// Requests pass through a small middleware chain (request ID, panic
// recovery, access log) built from plain net/http handlers.
package httpserver
