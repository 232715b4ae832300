// Package domain defines the shielded-pool ledger records and their wire
// encodings.
//
// Domain models are pure values without IO dependencies. This package contains:
//
//   - Records: Asset, Utxo, the incoming/outgoing notes, Receiver and Sender
//   - Checkpoint: the per-shard pull progress marker
//   - Responses: sparse and dense ledger diff responses, and Round
//   - Storage keys: key groups, key listings, storage prefixes and hashers
//   - Errors: domain-specific error definitions
//
// Every record has a fixed size, so fixed-length fields are Go arrays and a
// wrong length is rejected when a record is constructed from slices.
package domain
