// Package service provides the ledger extraction services.
//
// Services orchestrate the domain codecs against remote capabilities they
// define as interfaces, allowing the node client to be swapped for fakes
// in tests.
//
// This package contains:
//
//   - Fetcher: ordered, chunked point-in-time storage lookups
//   - Puller: checkpoint-resumable ledger diff rounds
//   - Extractor: concurrent snapshot extraction of the three key groups
//   - KeyScanner: paged on-chain enumeration of storage keys
//
// Progress is held in values returned to the caller. No service keeps
// global state, and every service is safe for concurrent use.
package service
